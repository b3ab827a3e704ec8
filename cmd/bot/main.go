package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"eraforge.game/internal/protocol"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name  = flag.String("name", "bot", "client name")
		every = flag.Duration("every", 250*time.Millisecond, "delay between intents")
		hire  = flag.String("hire", "gatherer", "worker to hire when affordable")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		Notifications:   []string{"eraAdvancement", "achievementUnlocked", "historicalEvent"},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	p := newPlanner(*hire)
	ticker := time.NewTicker(*every)
	defer ticker.Stop()

	msgs := make(chan []byte, 16)
	go func() {
		defer close(msgs)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msgs <- msg
		}
	}()

	seq := 0
	for {
		select {
		case <-stop:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			handleMessage(logger, p, msg)
		case <-ticker.C:
			if !p.ready {
				continue
			}
			seq++
			intent, target := p.next()
			in := protocol.IntentMsg{
				Type:   protocol.TypeIntent,
				ID:     fmt.Sprintf("bot_%d", seq),
				Intent: intent,
				Target: target,
			}
			if err := conn.WriteJSON(in); err != nil {
				logger.Printf("send INTENT: %v", err)
				return
			}
		}
	}
}

func handleMessage(logger *log.Logger, p *planner, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if err := json.Unmarshal(msg, &w); err != nil {
			return
		}
		logger.Printf("WELCOME session=%s game=%s catalogs=%s", w.SessionID, w.GameID, w.Catalogs.Combined[:12])
		p.ready = true
	case protocol.TypeOutcome:
		var o protocol.OutcomeMsg
		if err := json.Unmarshal(msg, &o); err != nil {
			return
		}
		p.observe(o)
		if o.OK && (o.Intent == protocol.IntentAdvanceEra || o.Intent == protocol.IntentHire) {
			logger.Printf("%s ok", o.Intent)
		}
	case protocol.TypeNotify:
		var n protocol.NotifyMsg
		if err := json.Unmarshal(msg, &n); err != nil {
			return
		}
		b, _ := json.Marshal(n.Data)
		logger.Printf("NOTIFY #%d %s %s", n.Seq, n.Event, b)
	case protocol.TypeError:
		logger.Printf("ERROR %s", msg)
	}
}
