package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// The agent registers its node with the controller, answers heartbeat probes
// and logs trust events concerning itself.
func main() {
	controller := flag.String("controller", "http://127.0.0.1:8080", "controller base URL")
	token := flag.String("token", "", "auth token")
	host := flag.String("host", "", "node identifier (defaults to hostname)")
	addr := flag.String("addr", "", "address advertised for probes (defaults to host)")
	desc := flag.String("desc", "", "node description")
	heartbeatAddr := flag.String("heartbeat-addr", ":9411", "listen address for heartbeat probes")
	interval := flag.Duration("interval", 5*time.Minute, "re-registration interval")
	flag.Parse()

	nodeID := *host
	if nodeID == "" {
		h, err := os.Hostname()
		if err != nil {
			log.Fatalf("hostname: %v", err)
		}
		nodeID = h
	}

	go serveHeartbeat(*heartbeatAddr)
	go watchEvents(*controller, nodeID)

	client := &http.Client{Timeout: 10 * time.Second}
	for {
		if err := register(client, *controller, *token, nodeID, *addr, *desc); err != nil {
			log.Printf("register failed: %v", err)
		}
		time.Sleep(*interval)
	}
}

func register(client *http.Client, controller, token, host, addr, desc string) error {
	body, err := json.Marshal(map[string]string{"host": host, "addr": addr, "desc": desc})
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, controller+"/api/v1/nodes/register", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Auth-Token", token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("controller returned %d", resp.StatusCode)
	}
	log.Printf("registered as %s", host)
	return nil
}

// serveHeartbeat accepts and immediately closes probe connections.
func serveHeartbeat(addr string) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Printf("heartbeat listen failed: %v", err)
		return
	}
	log.Printf("heartbeat listening on %s", addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_ = conn.Close()
	}
}

// watchEvents tails the controller's event stream and logs entries about
// this node. Reconnects with a flat backoff.
func watchEvents(controller, nodeID string) {
	wsURL := strings.Replace(controller, "http", "ws", 1) + "/api/v1/ws"
	for {
		c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			time.Sleep(10 * time.Second)
			continue
		}
		log.Printf("event stream connected")
		for {
			var ev struct {
				Type string `json:"type"`
				Node string `json:"node"`
			}
			if err := c.ReadJSON(&ev); err != nil {
				break
			}
			if ev.Node == nodeID {
				log.Printf("event %s for this node", ev.Type)
			}
		}
		_ = c.Close()
		time.Sleep(10 * time.Second)
	}
}
