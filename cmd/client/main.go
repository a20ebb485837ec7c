package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"lrnchat/internal/keystore"
	"lrnchat/internal/model"
	"lrnchat/internal/protocol"
	"lrnchat/internal/service/app"
	"lrnchat/internal/service/auth"
	"lrnchat/internal/utils/log"

	"go.uber.org/zap"
)

func main() {
	host := flag.String("host", "localhost:9090", "relay address")
	userID := flag.String("user", "", "user id")
	name := flag.String("name", "", "display name")
	conversation := flag.String("conv", "", "conversation to join")
	keystorePath := flag.String("keystore", "", "keystore path (default ~/.lrnchat/keystore.db)")
	flag.Parse()

	if *userID == "" || *conversation == "" {
		fmt.Fprintln(os.Stderr, "usage: client -user <id> -conv <conversationId> [-name <displayName>]")
		os.Exit(1)
	}
	if *name == "" {
		*name = *userID
	}

	// Dev-mode credential: mint a token with the shared secret. In a real
	// deployment the auth service hands the client its token.
	secret := os.Getenv("LRNCHAT_JWT_SECRET")
	if secret == "" {
		log.Fatal("LRNCHAT_JWT_SECRET is not set")
	}
	token, err := auth.NewVerifier(secret).Sign(model.Identity{ID: *userID, DisplayName: *name}, 12*time.Hour)
	if err != nil {
		log.Fatal("sign token failed", zap.Error(err))
	}

	keys, err := keystore.Open(*keystorePath, os.Getenv("LRNCHAT_KEYSTORE_PASSPHRASE"))
	if err != nil {
		log.Fatal("open keystore failed", zap.Error(err))
	}
	defer keys.Close()

	session, err := app.Dial(*host, token, keys, app.Handlers{
		OnMessage: func(envelope *model.Envelope, plaintext string) {
			fmt.Printf("[%s] %s: %s\n", envelope.Timestamp.Local().Format("15:04:05"), envelope.SenderName, plaintext)
		},
		OnAck: func(ack *protocol.Ack) {
			fmt.Printf("(delivered as %s)\n", ack.Envelope.ID)
		},
		OnError: func(sendErr *protocol.SendError) {
			fmt.Printf("(send failed: %s)\n", sendErr.Reason)
		},
		OnPresence: func(update *model.PresenceUpdate) {
			fmt.Printf("* %s is %s\n", update.UserID, update.Status)
		},
		OnTyping: func(update *model.TypingUpdate) {
			if update.IsTyping {
				fmt.Printf("* %s is typing...\n", update.DisplayName)
			}
		},
		OnRead: func(update *model.ReadUpdate) {
			fmt.Printf("* %s read %s\n", update.UserID, update.MessageID)
		},
	})
	if err != nil {
		log.Fatal("connect failed", zap.Error(err))
	}
	defer session.Close()

	if err := session.Join(*conversation); err != nil {
		log.Fatal("join failed", zap.Error(err))
	}

	if history, err := session.History(*conversation, 20); err != nil {
		log.Warn("history fetch failed", zap.Error(err))
	} else {
		for i := len(history) - 1; i >= 0; i-- {
			envelope := history[i]
			fmt.Printf("[%s] %s: %s\n", envelope.Timestamp.Local().Format("15:04:05"), envelope.SenderName, session.Decrypt(envelope))
		}
	}

	fmt.Printf("connected to %s as %s; /read <messageId> marks read, /export prints the conversation key, /quit exits\n", *conversation, *name)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/export":
			encoded, err := keys.ExportKey(*conversation)
			if err != nil {
				fmt.Println("export failed:", err)
				continue
			}
			fmt.Println("conversation key:", encoded)
		case strings.HasPrefix(line, "/import "):
			if err := keys.ImportKey(*conversation, strings.TrimPrefix(line, "/import ")); err != nil {
				fmt.Println("import failed:", err)
			}
		case strings.HasPrefix(line, "/read "):
			if err := session.MarkRead(strings.TrimPrefix(line, "/read "), *conversation); err != nil {
				fmt.Println("mark read failed:", err)
			}
		default:
			if _, err := session.Send(*conversation, line); err != nil {
				fmt.Println("send failed:", err)
			}
		}
	}
}
