package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const wsURL = "ws://localhost:3000/api/ws"

// Simplified frames for the script
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type connectData struct {
	Token        string   `json:"token"`
	Capabilities []string `json:"capabilities"`
	Preferences  struct {
		TtsEnabled bool   `json:"tts_enabled"`
		Language   string `json:"language"`
	} `json:"preferences"`
}

type textMessageData struct {
	SessionId uuid.UUID `json:"session_id"`
	MessageId string    `json:"message_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func main() {
	userColor := color.New(color.FgCyan, color.Bold)
	aiColor := color.New(color.FgGreen)
	sysColor := color.New(color.FgYellow)
	errColor := color.New(color.FgRed, color.Bold)

	fmt.Println("=== Voice Chat Simulation Client ===")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Fatalf("Failed to dial %s: %v", wsURL, err)
	}
	defer conn.Close()

	// 1. Connect with a locally minted dev token
	cd := connectData{
		Token:        mintToken(),
		Capabilities: []string{"text", "streaming"},
	}
	cd.Preferences.Language = "en"
	send(conn, "connect", cd)

	var sessionId uuid.UUID

	// 2. Wait for the connected acknowledgment
	event, data := read(conn)
	if event != "connected" {
		errColor.Printf("Expected connected, got %s: %s\n", event, string(data))
		return
	}
	var connected struct {
		SessionId          uuid.UUID `json:"session_id"`
		ServerCapabilities []string  `json:"server_capabilities"`
	}
	json.Unmarshal(data, &connected)
	sessionId = connected.SessionId
	sysColor.Printf("Connected. Session: %s Capabilities: %v\n", sessionId, connected.ServerCapabilities)

	testCases := []string{
		"hello, can you hear me?",
		"what did I just ask you?",
	}

	for i, text := range testCases {
		userColor.Printf("\nUSER: %s\n", text)
		send(conn, "text_message", textMessageData{
			SessionId: sessionId,
			MessageId: fmt.Sprintf("sim-%d", i+1),
			Text:      text,
			Timestamp: time.Now(),
		})

		start := time.Now()
	turn:
		for {
			event, data := read(conn)
			switch event {
			case "response_chunk":
				var chunk struct {
					Chunk   string `json:"chunk"`
					IsFinal bool   `json:"is_final"`
				}
				json.Unmarshal(data, &chunk)
				aiColor.Print(chunk.Chunk)
				if chunk.IsFinal {
					fmt.Println()
				}
			case "response":
				var resp struct {
					Text      string `json:"text"`
					LatencyMs int64  `json:"latency_ms"`
				}
				json.Unmarshal(data, &resp)
				sysColor.Printf("[turn done in %v, server latency %dms]\n", time.Since(start), resp.LatencyMs)
				break turn
			case "error":
				errColor.Printf("Error: %s\n", string(data))
				break turn
			default:
				sysColor.Printf("[%s] %s\n", event, string(data))
			}
		}

		time.Sleep(500 * time.Millisecond)
	}
}

// mintToken signs a throwaway dev token with the same secret the server reads
// from JWT_SECRET.
func mintToken() string {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-secret"
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": uuid.New().String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

func send(conn *websocket.Conn, event string, data interface{}) {
	payload, _ := json.Marshal(data)
	frame, _ := json.Marshal(envelope{Event: event, Data: payload})
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		log.Fatalf("Write failed: %v", err)
	}
}

func read(conn *websocket.Conn) (string, json.RawMessage) {
	_, raw, err := conn.ReadMessage()
	if err != nil {
		log.Fatalf("Read failed: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Fatalf("Malformed frame: %v", err)
	}
	return env.Event, env.Data
}
