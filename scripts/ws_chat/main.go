package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-rooms/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	mobile := flag.String("mobile", "+10000000001", "mobile number to identify with")
	name := flag.String("name", "cli-user", "display name")
	room := flag.String("room", "", "room to join; empty creates a new room")
	with := flag.String("with", "", "comma-separated mobiles invited when creating a room")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(v any) error {
		if err := wsjson.Write(ctx, conn, v); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		return nil
	}

	if err := send(map[string]any{"type": proto.TypeConnect, "mobile": *mobile, "username": *name}); err != nil {
		return err
	}

	roomID := *room
	if roomID == "" {
		participants := []string{}
		for _, m := range strings.Split(*with, ",") {
			if m = strings.TrimSpace(m); m != "" {
				participants = append(participants, m)
			}
		}
		if err := send(map[string]any{
			"type":         proto.TypeCreateRoom,
			"mobile":       *mobile,
			"username":     *name,
			"participants": participants,
		}); err != nil {
			return err
		}
		created, err := waitFor(ctx, conn, "room_created")
		if err != nil {
			return err
		}
		roomID, _ = created["roomId"].(string)
	} else if err := send(map[string]any{
		"type":     proto.TypeJoinRoom,
		"roomId":   roomID,
		"mobile":   *mobile,
		"username": *name,
	}); err != nil {
		return err
	}

	fmt.Printf("Connected to %s as %s in room %s\n", *addr, *name, roomID)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, roomID, *name)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func waitFor(ctx context.Context, conn *websocket.Conn, frameType string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for {
		var frame map[string]any
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return nil, fmt.Errorf("waiting for %s: %w", frameType, err)
		}
		switch frame["type"] {
		case frameType:
			return frame, nil
		case "error":
			return nil, fmt.Errorf("server error %v: %v", frame["code"], frame["message"])
		}
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var frame map[string]any
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch frame["type"] {
		case "message":
			fmt.Printf("[%v] %v: %v\n", frame["roomId"], frame["username"], frame["message"])
		case "system":
			fmt.Printf("[%v] * %v\n", frame["roomId"], frame["message"])
		case "message_notification":
			msg, _ := frame["message"].(map[string]any)
			fmt.Printf("(elsewhere %v) %v: %v\n", frame["roomId"], msg["username"], msg["preview"])
		case "history":
			entries, _ := frame["messages"].([]any)
			fmt.Printf("[%v] %d earlier messages\n", frame["roomId"], len(entries))
		case "error":
			fmt.Printf("error %v: %v\n", frame["code"], frame["message"])
		default:
			fmt.Printf("%v\n", frame)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, roomID, name string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			msg := map[string]any{"type": proto.TypeMessage, "roomId": roomID, "username": name, "message": text}
			if err := wsjson.Write(ctx, conn, msg); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
