package main

import "github.com/iamwookie/qadir-bot/cmd"

func main() {
	cmd.Execute()
}
