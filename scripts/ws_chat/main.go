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
	"strconv"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vinrai007/neww-mesgar10/internal/proto"
	"github.com/vinrai007/neww-mesgar10/scripts/internal/devclient"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	base := flag.String("base", "http://localhost:8080", "server base URL")
	cookie := flag.String("cookie", "token", "auth cookie name")
	user := flag.String("user", "cli-user", "username")
	password := flag.String("password", "cli-pass", "password")
	register := flag.Bool("register", false, "register the user before logging in")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	token, err := devclient.Login(ctx, *base, *user, *password, *register)
	if err != nil {
		return err
	}
	conn, err := devclient.Dial(ctx, *base, *cookie, token)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	fmt.Printf("Connected to %s as %s\n", *base, *user)
	fmt.Println("Type '<user id> <message>' and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var f devclient.Frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Printf("read: %v", err)
			}
			return
		}
		fmt.Println(f)
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn) {
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
			to, text, found := strings.Cut(strings.TrimSpace(line), " ")
			if !found {
				continue
			}
			recipient, err := strconv.ParseInt(to, 10, 64)
			if err != nil {
				fmt.Println("first word must be a user id")
				continue
			}

			if err := wsjson.Write(ctx, conn, proto.Frame{Recipient: &recipient, Text: &text}); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
