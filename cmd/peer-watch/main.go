package main

import "github.com/rudransh-shrivastava/peer-watch/internal/client/cmd"

func main() {
	cmd.Execute()
}
