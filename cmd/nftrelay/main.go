package main

import "github.com/vietddude/nftrelay/internal/cli"

func main() {
	cli.Execute()
}
