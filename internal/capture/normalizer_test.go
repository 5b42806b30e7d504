package capture

import (
	"errors"
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"netsentry/internal/model"
)

func buildPacket(t *testing.T, l ...gopacket.SerializableLayer) gopacket.Packet {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, l...); err != nil {
		t.Fatalf("failed to serialize test packet: %v", err)
	}
	return gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
}

func testEthernet(proto layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb},
		EthernetType: proto,
	}
}

func TestNormalizeTCP(t *testing.T) {
	ip := &layers.IPv4{
		Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP,
		SrcIP: net.ParseIP("192.168.1.10"), DstIP: net.ParseIP("10.0.0.1"),
	}
	tcp := &layers.TCP{
		SrcPort: 44321, DstPort: 80,
		SYN: true, ACK: true, Window: 65535,
	}
	tcp.SetNetworkLayerForChecksum(ip)
	packet := buildPacket(t, testEthernet(layers.EthernetTypeIPv4), ip, tcp,
		gopacket.Payload([]byte("GET / HTTP/1.1\r\n")))

	n := NewNormalizer(1500)
	rec, err := n.Normalize(packet)
	if err != nil {
		t.Fatal(err)
	}

	if rec.Protocol != model.ProtoTCP {
		t.Errorf("protocol = %q, want tcp", rec.Protocol)
	}
	if rec.SrcIP != "192.168.1.10" || rec.DstIP != "10.0.0.1" {
		t.Errorf("addresses = %s -> %s", rec.SrcIP, rec.DstIP)
	}
	if rec.SrcPort != 44321 || rec.DstPort != 80 {
		t.Errorf("ports = %d -> %d", rec.SrcPort, rec.DstPort)
	}
	if rec.TTL != 64 {
		t.Errorf("TTL = %d, want 64", rec.TTL)
	}
	if rec.TCP == nil {
		t.Fatal("TCP info missing")
	}
	// SYN|ACK
	if rec.TCP.Flags != 0x12 {
		t.Errorf("flags bitmap = %#02x, want 0x12", rec.TCP.Flags)
	}
	if string(rec.Payload) != "GET / HTTP/1.1\r\n" {
		t.Errorf("payload = %q", rec.Payload)
	}
}

func TestNormalizeUDP(t *testing.T) {
	ip := &layers.IPv4{
		Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP,
		SrcIP: net.ParseIP("192.168.1.10"), DstIP: net.ParseIP("8.8.8.8"),
	}
	udp := &layers.UDP{SrcPort: 50000, DstPort: 53}
	udp.SetNetworkLayerForChecksum(ip)
	packet := buildPacket(t, testEthernet(layers.EthernetTypeIPv4), ip, udp,
		gopacket.Payload([]byte{0x00, 0x01, 0x02}))

	rec, err := NewNormalizer(1500).Normalize(packet)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Protocol != model.ProtoUDP || rec.DstPort != 53 {
		t.Errorf("got %s to port %d", rec.Protocol, rec.DstPort)
	}
	if rec.TCP != nil {
		t.Error("UDP record must not carry TCP info")
	}
}

func TestNormalizeICMP(t *testing.T) {
	ip := &layers.IPv4{
		Version: 4, TTL: 64, Protocol: layers.IPProtocolICMPv4,
		SrcIP: net.ParseIP("192.168.1.10"), DstIP: net.ParseIP("10.0.0.1"),
	}
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0)}
	packet := buildPacket(t, testEthernet(layers.EthernetTypeIPv4), ip, icmp)

	rec, err := NewNormalizer(1500).Normalize(packet)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Protocol != model.ProtoICMP {
		t.Errorf("protocol = %q, want icmp", rec.Protocol)
	}
	if rec.SrcPort != 0 || rec.DstPort != 0 {
		t.Errorf("ICMP must have zero ports, got %d/%d", rec.SrcPort, rec.DstPort)
	}
}

func TestNormalizeRejectsNonIP(t *testing.T) {
	arp := &layers.ARP{
		AddrType: layers.LinkTypeEthernet, Protocol: layers.EthernetTypeIPv4,
		HwAddressSize: 6, ProtAddressSize: 4, Operation: layers.ARPRequest,
		SourceHwAddress:   []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		SourceProtAddress: []byte{192, 168, 1, 10},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{192, 168, 1, 1},
	}
	packet := buildPacket(t, testEthernet(layers.EthernetTypeARP), arp)

	n := NewNormalizer(1500)
	_, err := n.Normalize(packet)
	if err == nil {
		t.Fatal("ARP frame must be rejected")
	}
	if !errors.Is(err, model.ErrParse) {
		t.Errorf("error %v does not wrap ErrParse", err)
	}
	if n.Dropped() != 1 {
		t.Errorf("dropped counter = %d, want 1", n.Dropped())
	}
}

func TestNormalizeTruncatesPayload(t *testing.T) {
	ip := &layers.IPv4{
		Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP,
		SrcIP: net.ParseIP("192.168.1.10"), DstIP: net.ParseIP("10.0.0.1"),
	}
	udp := &layers.UDP{SrcPort: 50000, DstPort: 9999}
	udp.SetNetworkLayerForChecksum(ip)
	big := make([]byte, 1000)
	packet := buildPacket(t, testEthernet(layers.EthernetTypeIPv4), ip, udp, gopacket.Payload(big))

	rec, err := NewNormalizer(100).Normalize(packet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Payload) != 100 {
		t.Errorf("payload length = %d, want 100", len(rec.Payload))
	}
	// Size reflects the original frame, not the truncated payload.
	if rec.Size <= 1000 {
		t.Errorf("frame size = %d, expected the full frame length", rec.Size)
	}
}

func TestReplaySourceExhaustion(t *testing.T) {
	records := []*model.PacketRecord{
		{SrcIP: "10.0.0.1"}, {SrcIP: "10.0.0.2"},
	}
	src := NewReplaySource(records)
	if err := src.Start(); err != nil {
		t.Fatal(err)
	}
	defer src.Stop()

	for i := range records {
		rec, ok := src.TryNext()
		if !ok {
			t.Fatalf("record %d missing", i)
		}
		if rec.SrcIP != records[i].SrcIP {
			t.Errorf("record %d out of order", i)
		}
	}
	if _, ok := src.TryNext(); ok {
		t.Error("exhausted source still produced a record")
	}
}
