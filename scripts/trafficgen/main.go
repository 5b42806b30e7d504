// trafficgen writes synthetic pcap files for exercising the detection
// pipeline offline: benign background traffic, a SYN flood, or a port
// scan, selected by -scenario.
package main

import (
	"flag"
	"log"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

func main() {
	outputFile := flag.String("o", "traffic.pcap", "Output pcap file path")
	packetCount := flag.Int("c", 1000, "Number of packets to generate")
	scenario := flag.String("scenario", "normal", "Traffic scenario: normal, synflood or portscan")
	flag.Parse()

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	pcapWriter := pcapgo.NewWriter(f)
	if err := pcapWriter.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("Failed to write pcap header: %v", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	base := time.Now()

	log.Printf("Generating %d %s packets into %s...", *packetCount, *scenario, *outputFile)

	for i := 0; i < *packetCount; i++ {
		var pkt []byte
		var ts time.Time
		switch *scenario {
		case "synflood":
			// Many spoofed sources, one victim, lone SYNs in a tight burst.
			pkt = tcpPacket(
				net.IP{10, byte(rng.Intn(4)), byte(rng.Intn(256)), byte(rng.Intn(254) + 1)},
				net.IP{10, 0, 0, 2},
				layers.TCPPort(rng.Intn(65535-1024)+1024), 80,
				true, false, nil, rng)
			ts = base.Add(time.Duration(i) * 2 * time.Millisecond)
		case "portscan":
			// One source walking the victim's ports.
			pkt = tcpPacket(
				net.IP{10, 0, 0, 66}, net.IP{10, 0, 0, 2},
				40000, layers.TCPPort(i%10000+1),
				true, false, nil, rng)
			ts = base.Add(time.Duration(i) * 200 * time.Millisecond)
		default:
			// Established-looking conversations with text payloads.
			payload := make([]byte, rng.Intn(400)+100)
			for j := range payload {
				payload[j] = byte(rng.Intn(95) + 32)
			}
			pkt = tcpPacket(
				net.IP{192, 168, 1, byte(rng.Intn(50) + 10)},
				net.IP{10, 0, 0, byte(rng.Intn(5) + 1)},
				layers.TCPPort(rng.Intn(65535-1024)+1024),
				layers.TCPPort([]int{80, 443, 22, 53}[rng.Intn(4)]),
				false, true, payload, rng)
			ts = base.Add(time.Duration(i) * 50 * time.Millisecond)
		}

		ci := gopacket.CaptureInfo{
			Timestamp:     ts,
			CaptureLength: len(pkt),
			Length:        len(pkt),
		}
		if err := pcapWriter.WritePacket(ci, pkt); err != nil {
			log.Fatalf("Failed to write packet: %v", err)
		}
	}

	log.Printf("Successfully generated %d packets into %s.", *packetCount, *outputFile)
}

func tcpPacket(srcIP, dstIP net.IP, srcPort, dstPort layers.TCPPort, syn, ack bool, payload []byte, rng *rand.Rand) []byte {
	ethLayer := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ipLayer := &layers.IPv4{
		SrcIP:    srcIP,
		DstIP:    dstIP,
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
	}
	tcpLayer := &layers.TCP{
		SrcPort: srcPort,
		DstPort: dstPort,
		Seq:     rng.Uint32(),
		SYN:     syn,
		ACK:     ack,
		PSH:     ack && len(payload) > 0,
		Window:  14600,
	}
	tcpLayer.SetNetworkLayerForChecksum(ipLayer)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		ComputeChecksums: true,
		FixLengths:       true,
	}
	if err := gopacket.SerializeLayers(buf, opts, ethLayer, ipLayer, tcpLayer, gopacket.Payload(payload)); err != nil {
		log.Fatalf("Failed to serialize layers: %v", err)
	}
	return buf.Bytes()
}
