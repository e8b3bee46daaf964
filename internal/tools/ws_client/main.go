package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dbehnke/turbocodec/pkg/web"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "http service address (host:port)")
	message := flag.String("message", "Hello World!", "message to encode and decode once on connect")
	flag.Parse()

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	log.Printf("connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer func() { _ = c.Close() }()

	// Handle interrupt to exit cleanly
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	go func() {
		for {
			var msg struct {
				Type  string          `json:"type"`
				ID    string          `json:"id"`
				Op    string          `json:"op"`
				Data  json.RawMessage `json:"data"`
				Error string          `json:"error"`
			}
			if err := c.ReadJSON(&msg); err != nil {
				log.Printf("read error: %v", err)
				return
			}

			switch msg.Type {
			case web.MessageResult:
				var data []byte
				if err := json.Unmarshal(msg.Data, &data); err != nil {
					log.Printf("recv %s %s: bad data: %v", msg.Op, msg.ID, err)
					continue
				}
				log.Printf("recv %s %s: %d bytes %x", msg.Op, msg.ID, len(data), data)
				if msg.Op == web.OpEncode {
					// Send the packet straight back to check the round trip.
					req := web.WebSocketRequest{ID: msg.ID + "-rt", Op: web.OpDecode, Data: data}
					if err := c.WriteJSON(req); err != nil {
						log.Printf("write error: %v", err)
					}
				} else {
					log.Printf("decoded: %q", data)
				}
			case web.MessageError:
				log.Printf("recv error %s: %s", msg.ID, msg.Error)
			default:
				log.Printf("recv %s: %s", msg.Type, msg.Data)
			}
		}
	}()

	if err := c.WriteJSON(web.WebSocketRequest{ID: "1", Op: web.OpEncode, Data: []byte(*message)}); err != nil {
		log.Fatalf("write: %v", err)
	}

	<-sig
	log.Println("interrupt received, closing websocket")
	_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	// give the close a moment
	time.Sleep(500 * time.Millisecond)
}
