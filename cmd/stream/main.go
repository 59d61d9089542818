package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"ropesim/internal/protocol"
)

func main() {
	var (
		url        = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		inputPath  = flag.String("input", "", "command list file (required)")
		followers  = flag.String("followers", "", "comma-separated follower counts (default: server tuning)")
		frameEvery = flag.Int("frame_every", 0, "frame interval in steps (0 = server default)")
		quiet      = flag.Bool("quiet", false, "do not print frames")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[stream] ", log.LstdFlags|log.Lmicroseconds)
	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "missing -input")
		os.Exit(2)
	}
	f, err := os.Open(*inputPath)
	if err != nil {
		logger.Fatalf("open input: %v", err)
	}
	cmds, err := protocol.ParseCommands(f)
	_ = f.Close()
	if err != nil {
		logger.Fatalf("parse: %v", err)
	}

	var fl []int
	if *followers != "" {
		for _, s := range strings.Split(*followers, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				logger.Fatalf("bad -followers: %v", err)
			}
			fl = append(fl, n)
		}
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.DocFromCommands(cmds, fl)
	hello.Type = protocol.TypeHello
	hello.FrameEvery = *frameEvery
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Printf("read: %v", err)
			}
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeFrame:
			if *quiet {
				continue
			}
			var fr protocol.FrameMsg
			if err := json.Unmarshal(msg, &fr); err != nil {
				continue
			}
			logger.Printf("FRAME part=%s step=%d cmd=%d knots=%v", fr.Part, fr.Step, fr.Command, fr.Knots)

		case protocol.TypeResult:
			var res protocol.ResultMsg
			if err := json.Unmarshal(msg, &res); err != nil {
				logger.Fatalf("decode RESULT: %v", err)
			}
			logger.Printf("RESULT run=%s", res.RunID)
			for i, p := range res.Parts {
				fmt.Printf("Part %d: %d\n", i+1, p.Distinct)
			}

		case protocol.TypeError:
			var em protocol.ErrorMsg
			_ = json.Unmarshal(msg, &em)
			logger.Printf("ERROR %s: %s", em.Code, em.Message)
			os.Exit(1)
		}
	}
}
