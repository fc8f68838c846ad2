package main

import "media-proxy/cmd/media-proxy/cmd"

func main() {
	cmd.Execute()
}
