package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/arzzra/wfdsession/internal/rtspmsg"
	"github.com/arzzra/wfdsession/pkg/session"
)

func main() {
	var (
		mode       = flag.String("mode", "rtsp-server", "Mode: rtsp-server, tcp-datagram-server, udp")
		listenAddr = flag.String("listen", "0.0.0.0", "Local bind address")
		listenPort = flag.Int("port", 7236, "Local bind port (Wi-Fi Display default control port)")
		remoteHost = flag.String("remote-host", "", "Remote host, for Udp default peer")
		remotePort = flag.Int("remote-port", 0, "Remote port, for Udp default peer")
	)
	flag.Parse()

	eng := session.NewEngine()
	if err := eng.Start(); err != nil {
		log.Fatalf("start engine: %v", err)
	}
	defer eng.Stop()

	sink := session.PosterFunc(logNotification)

	var id session.ID
	var err error

	switch *mode {
	case "rtsp-server":
		id, err = eng.CreateRtspServer(*listenAddr, *listenPort, session.Template{Sink: sink})
	case "tcp-datagram-server":
		id, err = eng.CreateTCPDatagramSession(false, *listenAddr, *listenPort, "", 0, session.Template{Sink: sink})
	case "udp":
		id, err = eng.CreateUDPSession(*listenAddr, *listenPort, *remoteHost, *remotePort, session.Template{Sink: sink})
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q; want rtsp-server, tcp-datagram-server, udp\n", *mode)
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("create session: %v", err)
	}

	log.Printf("listening: mode=%s session=%s addr=%s:%d", *mode, id, *listenAddr, *listenPort)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Printf("shutting down")
}

func logNotification(n *session.Notification) {
	switch n.Reason {
	case session.ReasonClientConnected:
		log.Printf("[%s] ClientConnected server=%s:%d client=%s:%d",
			n.SessionID, n.ServerIP, n.ServerPort, n.ClientIP, n.ClientPort)
	case session.ReasonConnected:
		log.Printf("[%s] Connected", n.SessionID)
	case session.ReasonData:
		msg, _ := n.Message.(*rtspmsg.Message)
		if msg != nil {
			log.Printf("[%s] Data cseq=%d method=%s uri=%s", n.SessionID, msg.CSeq(), msg.Method, msg.RequestURI)
		} else {
			log.Printf("[%s] Data", n.SessionID)
		}
	case session.ReasonBinaryData:
		log.Printf("[%s] BinaryData channel=%d len=%d", n.SessionID, n.Channel, len(n.Data.Bytes))
	case session.ReasonDatagram:
		log.Printf("[%s] Datagram from=%s:%d len=%d", n.SessionID, n.FromAddr, n.FromPort, len(n.Data.Bytes))
	case session.ReasonError:
		log.Printf("[%s] Error send=%v err=%d detail=%s", n.SessionID, n.Send, n.Err, n.Detail)
	}
}
