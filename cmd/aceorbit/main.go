package main

import "github.com/diogo/aceorbit/internal/commands"

func main() {
	commands.Execute()
}
