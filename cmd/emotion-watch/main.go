// emotion-watch - prints the emotion event stream of a running moodpet
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-moodpet/pkg/emotion"
	"github.com/teslashibe/go-moodpet/pkg/stream"
)

func main() {
	addr := flag.String("addr", "localhost:8088", "moodpet control API host:port")
	scores := flag.Bool("scores", false, "Print the full score vector")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws/emotions"}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to connect to %s: %v\n", u.String(), err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Printf("📡 Watching %s (Ctrl+C to stop)\n", u.String())

	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				fmt.Fprintf(os.Stderr, "❌ Connection closed: %v\n", err)
				os.Exit(1)
			}
			return
		}

		var ev stream.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  bad event: %v\n", err)
			continue
		}
		fmt.Println(format(ev, *scores))
	}
}

func format(ev stream.Event, withScores bool) string {
	line := fmt.Sprintf("%s #%-6d %-8s %.2f", ev.At.Format("15:04:05.000"), ev.Seq, ev.Label, ev.Confidence)
	if !withScores {
		return line
	}
	var b strings.Builder
	b.WriteString(line)
	for i, name := range emotion.Labels() {
		fmt.Fprintf(&b, " %s=%.2f", name, ev.Scores[i])
	}
	return b.String()
}
