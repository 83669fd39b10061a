package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"github.com/threadline/chat-relay/pkg/model"
)

type tokenResponse struct {
	Token string `json:"token"`
}

func fetchToken(apiAddr, externalID, displayName, handle string) (string, error) {
	reqBody, _ := json.Marshal(map[string]string{
		"externalId":  externalID,
		"displayName": displayName,
		"handle":      handle,
	})
	resp, err := http.Post(apiAddr+"/api/v1/auth/token", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token request failed: %s", string(body))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", err
	}
	return tr.Token, nil
}

func main() {
	relayAddr := flag.String("addr", "localhost:8080", "relay service address")
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	externalID := flag.String("user", "user1", "external user reference")
	displayName := flag.String("name", "", "display name")
	handle := flag.String("handle", "", "handle")
	recipient := flag.Int64("dm", 0, "local user id to message")
	flag.Parse()

	token, err := fetchToken(*apiAddr, *externalID, *displayName, *handle)
	if err != nil {
		log.Fatal(err)
	}

	u := url.URL{Scheme: "ws", Host: *relayAddr, Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer conn.Close()

	// First frame authenticates the connection.
	frame, _ := model.EncodeEvent(model.EventAuth, model.AuthPayload{UserID: token})
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		log.Fatal("auth:", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				log.Println("read:", err)
				return
			}
			var env model.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			fmt.Printf("<- %s %s\n", env.Event, string(env.Data))
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if *recipient <= 0 {
				log.Println("set -dm to send messages")
				continue
			}
			frame, _ := model.EncodeEvent(model.EventDMSend, model.SendPayload{
				RecipientUserID: *recipient,
				Body:            line,
			})
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Println("write:", err)
				return
			}
		}
	}
}
