package main

import "github.com/kebairia/sbackup/cmd"

func main() {
	cmd.Execute()
}
