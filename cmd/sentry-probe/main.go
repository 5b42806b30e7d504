package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"github.com/nats-io/nats.go"

	"netsentry/internal/capture"
	"netsentry/internal/probe"
)

const (
	snapshotLen int32 = 1600
	promiscuous       = true
	maxPayload        = 1500
)

func main() {
	mode := flag.String("mode", "pub", "Operating mode: 'pub' to capture and publish, 'sub' to subscribe and print.")
	iface := flag.String("iface", "", "Interface to capture packets from (required for pub mode).")
	natsURL := flag.String("nats", nats.DefaultURL, "NATS server URL.")
	subject := flag.String("subject", "netsentry.packets", "NATS subject for packet records.")
	bpf := flag.String("bpf", "", "Optional BPF filter for the capture.")
	flag.Parse()

	switch *mode {
	case "pub":
		runProbe(*iface, *natsURL, *subject, *bpf)
	case "sub":
		runSubscriber(*natsURL, *subject)
	default:
		fmt.Fprintf(os.Stderr, "Invalid mode: %s\n", *mode)
		flag.Usage()
		os.Exit(1)
	}
}

// runProbe captures packets from an interface, normalizes them and
// publishes the records to NATS for a remote engine to consume.
func runProbe(interfaceName, natsURL, subject, bpf string) {
	if interfaceName == "" {
		log.Println("Error: -iface flag is required for pub mode.")
		flag.Usage()
		os.Exit(1)
	}
	log.Printf("Starting sentry-probe on interface %s, publishing to %s", interfaceName, subject)

	pub, err := probe.NewPublisher(natsURL, subject)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer pub.Close()

	handle, err := pcap.OpenLive(interfaceName, snapshotLen, promiscuous, pcap.BlockForever)
	if err != nil {
		log.Fatalf("Error opening device %s: %v", interfaceName, err)
	}
	defer handle.Close()
	if bpf != "" {
		if err := handle.SetBPFFilter(bpf); err != nil {
			log.Fatalf("Failed to set BPF filter %q: %v", bpf, err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	normalizer := capture.NewNormalizer(maxPayload)
	go func() {
		packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
		published := 0
		for packet := range packetSource.Packets() {
			rec, err := normalizer.Normalize(packet)
			if err != nil {
				continue // Skip non-IP frames.
			}
			if err := pub.Publish(rec); err != nil {
				log.Printf("Failed to publish packet: %v", err)
			}
			published++
			if published%1000 == 0 {
				log.Printf("%d packets published...", published)
			}
		}
	}()

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
}

// runSubscriber subscribes to the packet subject and prints the records
// it receives. Useful for verifying a probe deployment.
func runSubscriber(natsURL, subject string) {
	log.Printf("Subscribing to %s on %s", subject, natsURL)

	src := capture.NewNATSSource(natsURL, subject, 1024)
	if err := src.Start(); err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}
	defer src.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-sigChan:
			log.Println("Shutdown signal received.")
			return
		default:
		}
		rec, ok := src.TryNext()
		if !ok {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		log.Printf("%s %s:%d -> %s:%d %d bytes", rec.Protocol,
			rec.SrcIP, rec.SrcPort, rec.DstIP, rec.DstPort, rec.Size)
	}
}
