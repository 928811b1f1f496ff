package main

import "zako_server/cmd"

func main() {
	cmd.Execute()
}
