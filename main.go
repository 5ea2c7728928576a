package main

import "github.com/zfogg/feedline/internal/cmd"

func main() {
	cmd.Execute()
}
