package main

import "mp4-mp3/cmd"

func main() {
	cmd.Execute()
}
