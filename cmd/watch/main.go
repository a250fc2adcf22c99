package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"terracell.ai/internal/protocol"
	"terracell.ai/internal/sim/encoding"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "watch", "client name")
		compact  = flag.Bool("compact", true, "ask for float32 elevation")
		recolor  = flag.Bool("recolor", true, "ask for BIOMES updates on threshold changes")
		every    = flag.Duration("regen_every", 0, "send REGEN at this interval (needs a server started with -allow_control)")
		validate = flag.Bool("validate", false, "validate every server message against the protocol schemas")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[watch] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		Capabilities: protocol.HelloCapabilities{
			CompactElevation: *compact,
			RecolorUpdates:   *recolor,
			Control:          *every > 0,
		},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	var schemas *protocol.Validator
	if *validate {
		if schemas, err = protocol.DefaultValidator(); err != nil {
			logger.Fatalf("schemas: %v", err)
		}
	}

	if *every > 0 {
		go func() {
			t := time.NewTicker(*every)
			defer t.Stop()
			n := 0
			for range t.C {
				n++
				msg := protocol.RegenMsg{Type: protocol.TypeRegen, ProtocolVersion: protocol.Version, RequestID: fmt.Sprintf("R_%d", n)}
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	v := &viewer{}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if schemas != nil {
			if base, err := protocol.DecodeBase(msg); err == nil {
				if err := schemas.Validate(base.Type, msg); err != nil {
					logger.Printf("schema: %s: %v", base.Type, err)
				}
			}
		}
		line, err := v.apply(msg)
		if err != nil {
			logger.Printf("%v", err)
			continue
		}
		if line != "" {
			logger.Print(line)
		}
	}
}

// viewer keeps the client-side copy of the map: per-site category ids of the last MAP,
// recolored in place by BIOMES.
type viewer struct {
	mapID      string
	generation uint64
	digest     string
	biomes     []uint16
	refs       []protocol.BiomeRef
}

func (v *viewer) apply(raw []byte) (string, error) {
	base, err := protocol.DecodeBase(raw)
	if err != nil {
		return "", err
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if err := json.Unmarshal(raw, &w); err != nil {
			return "", err
		}
		v.mapID = w.MapID
		v.refs = w.Biomes
		return fmt.Sprintf("WELCOME session=%s map=%s generation=%d control=%v seed=%#x grid=%d",
			w.SessionID, w.MapID, w.Generation, w.Control, w.MapGen.Seed, w.MapGen.GridSize), nil

	case protocol.TypeMap:
		var m protocol.MapMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return "", err
		}
		sites := 0
		for _, c := range m.Cells {
			if c.Site+1 > sites {
				sites = c.Site + 1
			}
		}
		v.biomes = make([]uint16, sites)
		closed := 0
		for _, c := range m.Cells {
			v.biomes[c.Site] = c.Biome
			if c.Closed {
				closed++
			}
		}
		v.generation, v.digest, v.refs = m.Generation, m.Digest, m.Biomes
		return fmt.Sprintf("MAP generation=%d cells=%d closed=%d digest=%s %s",
			m.Generation, len(m.Cells), closed, short(m.Digest), v.histogram()), nil

	case protocol.TypeBiomes:
		var b protocol.BiomesMsg
		if err := json.Unmarshal(raw, &b); err != nil {
			return "", err
		}
		if b.Encoding != protocol.EncodingRLE {
			return "", fmt.Errorf("BIOMES: unknown encoding %q", b.Encoding)
		}
		if b.Sites != len(v.biomes) {
			return "", fmt.Errorf("BIOMES for %d sites, map has %d", b.Sites, len(v.biomes))
		}
		ids, err := encoding.DecodeRLE(b.Data, b.Sites)
		if err != nil {
			return "", fmt.Errorf("BIOMES: %w", err)
		}
		if len(ids) != b.Sites {
			return "", fmt.Errorf("BIOMES: decoded %d ids for %d sites", len(ids), b.Sites)
		}
		v.biomes, v.digest, v.refs = ids, b.Digest, b.Biomes
		return fmt.Sprintf("BIOMES generation=%d digest=%s %s", b.Generation, short(b.Digest), v.histogram()), nil

	case protocol.TypeAck:
		var a protocol.AckMsg
		if err := json.Unmarshal(raw, &a); err != nil {
			return "", err
		}
		if a.Accepted {
			return fmt.Sprintf("ACK %s %s", a.AckFor, a.RequestID), nil
		}
		return fmt.Sprintf("ACK %s %s rejected %s: %s", a.AckFor, a.RequestID, a.Code, a.Message), nil

	case protocol.TypeError:
		var e protocol.ErrorMsg
		if err := json.Unmarshal(raw, &e); err != nil {
			return "", err
		}
		return fmt.Sprintf("ERROR %s: %s", e.Code, e.Message), nil
	}
	return "", nil
}

func (v *viewer) histogram() string {
	counts := make([]int, len(v.refs))
	other := 0
	for _, id := range v.biomes {
		if int(id) < len(counts) {
			counts[id]++
		} else {
			other++
		}
	}
	parts := make([]string, 0, len(counts)+1)
	for i, ref := range v.refs {
		parts = append(parts, fmt.Sprintf("%s=%d", ref.Name, counts[i]))
	}
	if other > 0 {
		parts = append(parts, fmt.Sprintf("unknown=%d", other))
	}
	return strings.Join(parts, " ")
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
