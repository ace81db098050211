// Command crawler runs the distributed web crawler worker process.
package main

import (
	"fmt"
	"os"

	"github.com/saurabh6354/distributed-web-crawler/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
