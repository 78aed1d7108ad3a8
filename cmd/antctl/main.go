package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

var (
	server  = pflag.StringP("server", "s", "http://127.0.0.1:8090", "antbridged base URL")
	command = pflag.StringP("cmd", "c", "", "Command to send (e.g., 'STATUS', 'SELECT:A3')")
)

func main() {
	pflag.Parse()

	if *server == "" {
		fmt.Fprintf(os.Stderr, "Server URL is required\n")
		os.Exit(1)
	}

	// If no command specified, show help
	if *command == "" {
		if len(pflag.Args()) > 0 {
			*command = strings.Join(pflag.Args(), " ")
		} else {
			showHelp()
			return
		}
	}

	req, err := parseCommand(*command)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	response, err := newAPIClient(*server).do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", response.String())
	if !response.Success {
		os.Exit(1)
	}
}

func showHelp() {
	fmt.Println("antctl - antbridged control tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s [options] <command>\n", os.Args[0])
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -s, --server <url>    antbridged base URL (default: http://127.0.0.1:8090)")
	fmt.Println("  -c, --cmd <command>   Command to send")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  STATUS                    Get bridge status")
	fmt.Println("  RULES                     List antenna rules")
	fmt.Println("  COMMANDS                  Get recent commands")
	fmt.Println("  COMMANDS:10               Get last 10 commands")
	fmt.Println("  SELECT:<rig><antenna>     Select an antenna (A3, B-)")
	fmt.Println("  SEND:<text>               Send raw text to the controller")
	fmt.Println("  AUTO:<rig>:ON|OFF         Toggle automatic selection")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  %s STATUS\n", os.Args[0])
	fmt.Printf("  %s SELECT:B-\n", os.Args[0])
	fmt.Printf("  %s AUTO:A:ON\n", os.Args[0])
}
