package main

import "github.com/catalogsync/backend/cmd/catalogsync/cmd"

func main() {
	cmd.Execute()
}
