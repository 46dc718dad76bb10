package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vinrai007/neww-mesgar10/internal/proto"
	"github.com/vinrai007/neww-mesgar10/scripts/internal/devclient"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

// run logs two users in, sends one message from the first to the second and
// waits for the delivery.
func run() error {
	base := flag.String("base", "http://localhost:8080", "server base URL")
	cookie := flag.String("cookie", "token", "auth cookie name")
	from := flag.String("from", "smoke-a", "sender username")
	to := flag.String("to", "smoke-b", "recipient username")
	password := flag.String("password", "smoke-pass", "password for both users")
	register := flag.Bool("register", false, "register the users before logging in")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	senderToken, err := devclient.Login(ctx, *base, *from, *password, *register)
	if err != nil {
		return err
	}
	recipientToken, err := devclient.Login(ctx, *base, *to, *password, *register)
	if err != nil {
		return err
	}

	sender, err := devclient.Dial(ctx, *base, *cookie, senderToken)
	if err != nil {
		return err
	}
	defer sender.Close(websocket.StatusNormalClosure, "bye")
	recipient, err := devclient.Dial(ctx, *base, *cookie, recipientToken)
	if err != nil {
		return err
	}
	defer recipient.Close(websocket.StatusNormalClosure, "bye")

	// The sender learns the recipient's id from presence.
	var recipientID int64
	for recipientID == 0 {
		var f devclient.Frame
		if err := wsjson.Read(ctx, sender, &f); err != nil {
			return fmt.Errorf("read presence: %w", err)
		}
		fmt.Println("sender <-", f)
		if f.Online == nil {
			continue
		}
		for _, u := range *f.Online {
			if u.Username == *to {
				recipientID = u.UserID
			}
		}
	}

	if err := wsjson.Write(ctx, sender, proto.Frame{Recipient: &recipientID, Text: text}); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	for {
		var f devclient.Frame
		if err := wsjson.Read(ctx, recipient, &f); err != nil {
			return fmt.Errorf("read delivery: %w", err)
		}
		fmt.Println("recipient <-", f)
		if f.Error != nil {
			return errors.New(f.Error.Msg)
		}
		if f.ID != 0 {
			return nil
		}
	}
}
