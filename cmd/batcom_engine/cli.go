package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/batcom/engine/internal/dispatcher"
)

// main only runs when the engine is built as a standalone binary for local
// testing. In production the library is loaded by the host simulator and
// entered through the RVExtension exports; init() has already assembled the
// engine by the time either entry is reached.
func main() {
	fmt.Printf("batcom_engine %s (built %s) interactive console\n", CurrentExtensionVersion, BuildDate)
	fmt.Println(`enter "<function> [payload]", e.g. is_initialized, or "status", "exit"`)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		if line == "status" {
			h := monitorService.Sample()
			b, err := json.MarshalIndent(h, "", "  ")
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Println(string(b))
			continue
		}

		name, payload, _ := strings.Cut(line, " ")
		var args []string
		if payload != "" {
			args = append(args, payload)
		}

		result, err := eventDispatcher.Dispatch(dispatcher.Event{
			Command:   name,
			Args:      args,
			Timestamp: time.Now(),
		})
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		fmt.Printf("%v\n", result)
	}

	monitorService.Stop()
	LogManager.Flush(context.Background())
}
