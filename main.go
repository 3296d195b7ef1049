package main

import "github.com/KaramelBytes/csvbot/cmd"

func main() {
	cmd.Execute()
}
