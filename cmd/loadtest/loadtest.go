// Command loadtest drives a running server with synthetic chat traffic:
// register N users, open a websocket per user, put everyone in one group
// room, and send messages at a fixed rate while counting deliveries.
//
//nolint:all
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

var (
	baseURL  = flag.String("url", "http://localhost:8080", "server base URL")
	users    = flag.Int("users", 10, "number of synthetic users")
	messages = flag.Int("messages", 20, "messages per user")
	interval = flag.Duration("interval", 200*time.Millisecond, "delay between messages per user")
)

type authResponse struct {
	Token  string    `json:"token"`
	UserID uuid.UUID `json:"userId"`
}

type roomResponse struct {
	ID uuid.UUID `json:"id"`
}

func main() {
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	run := uuid.NewString()[:8]

	accounts := make([]authResponse, *users)
	for i := range accounts {
		acct, err := register(ctx, fmt.Sprintf("loadtest-%s-%d", run, i))
		if err != nil {
			log.Fatalf("register user %d: %v", i, err)
		}
		accounts[i] = acct
	}

	memberIDs := make([]uuid.UUID, 0, len(accounts)-1)
	for _, acct := range accounts[1:] {
		memberIDs = append(memberIDs, acct.UserID)
	}
	roomID, err := createGroupRoom(ctx, accounts[0].Token, "loadtest-"+run, memberIDs)
	if err != nil {
		log.Fatalf("create room: %v", err)
	}
	log.Printf("created room %s with %d members", roomID, len(accounts))

	var received atomic.Int64
	var wg sync.WaitGroup
	for i, acct := range accounts {
		wg.Add(1)
		go func(i int, acct authResponse) {
			defer wg.Done()
			if err := runClient(ctx, acct, roomID, &received); err != nil {
				log.Printf("client %d: %v", i, err)
			}
		}(i, acct)
	}
	wg.Wait()

	sent := int64(*users) * int64(*messages)
	want := sent * int64(*users) // every member receives every message
	log.Printf("sent=%d delivered=%d expected=%d", sent, received.Load(), want)
}

func register(ctx context.Context, username string) (authResponse, error) {
	body, _ := json.Marshal(map[string]string{
		"username": username,
		"email":    username + "@loadtest.invalid",
		"password": "loadtest-password",
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		*baseURL+"/api/auth/register", bytes.NewReader(body))
	if err != nil {
		return authResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return authResponse{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		return authResponse{}, fmt.Errorf("unexpected status %d", res.StatusCode)
	}

	var acct authResponse
	return acct, json.NewDecoder(res.Body).Decode(&acct)
}

func createGroupRoom(ctx context.Context, token, name string, memberIDs []uuid.UUID) (uuid.UUID, error) {
	body, _ := json.Marshal(map[string]any{
		"name":    name,
		"isGroup": true,
		"userIds": memberIDs,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		*baseURL+"/api/chat/rooms", bytes.NewReader(body))
	if err != nil {
		return uuid.Nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return uuid.Nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return uuid.Nil, fmt.Errorf("unexpected status %d", res.StatusCode)
	}

	var room roomResponse
	if err := json.NewDecoder(res.Body).Decode(&room); err != nil {
		return uuid.Nil, err
	}
	return room.ID, nil
}

func runClient(ctx context.Context, acct authResponse, roomID uuid.UUID, received *atomic.Int64) error {
	conn, _, err := websocket.Dial(ctx, *baseURL+"/ws?access_token="+acct.Token, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()

	// Count inbound frames until the connection or context dies.
	go func() {
		for {
			_, _, err := conn.Read(ctx)
			if err != nil {
				return
			}
			received.Add(1)
		}
	}()

	for i := 0; i < *messages; i++ {
		frame, _ := json.Marshal(map[string]any{
			"action":     "SendMessage",
			"chatRoomId": roomID,
			"content":    fmt.Sprintf("message %d", i),
		})
		if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
			return fmt.Errorf("write: %w", err)
		}
		time.Sleep(*interval)
	}

	// Grace period for the last fan-out to arrive.
	time.Sleep(2 * time.Second)
	return conn.Close(websocket.StatusNormalClosure, "done")
}
