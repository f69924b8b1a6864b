package publish

import (
	"log"
	"net"
	"sync"
	"time"
)

// Message is a formatted feed line plus its routing flag.
type Message struct {
	Data []byte
	Flag uint32
}

type udpTarget struct {
	addr *net.UDPAddr
	mask uint32
}

type tcpClient struct {
	addr    string
	mask    uint32
	queue   chan *Message
	running bool
	wg      sync.WaitGroup
}

// Sender fans pose/diagnostic lines out to downstream consumers. UDP targets
// are fire-and-forget; TCP targets get a buffered queue with reconnect, and
// messages are dropped rather than blocking the estimation path.
type Sender struct {
	udpTargets []*udpTarget
	tcpClients []*tcpClient
	connUDP    *net.UDPConn
	header     []byte
	running    bool
}

func NewSender() *Sender {
	return &Sender{}
}

// SetHeader prefixes every outgoing line with "hdr:". Empty clears it.
func (s *Sender) SetHeader(hdr string) {
	if hdr == "" {
		s.header = nil
	} else {
		s.header = []byte(hdr + ":")
	}
}

func (s *Sender) AddUDPTarget(addr string, mask uint32) error {
	uaddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	s.udpTargets = append(s.udpTargets, &udpTarget{addr: uaddr, mask: mask})
	return nil
}

func (s *Sender) AddTCPTarget(addr string, mask uint32) {
	s.tcpClients = append(s.tcpClients, &tcpClient{
		addr:  addr,
		mask:  mask,
		queue: make(chan *Message, 1000),
	})
}

func (s *Sender) Start() error {
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return err
	}
	s.connUDP = conn
	s.running = true

	for _, c := range s.tcpClients {
		c.start()
	}
	return nil
}

func (s *Sender) Stop() {
	s.running = false
	if s.connUDP != nil {
		s.connUDP.Close()
	}
	for _, c := range s.tcpClients {
		c.stop()
	}
}

// Send routes data to every target whose mask contains flag.
func (s *Sender) Send(data []byte, flag uint32) {
	if !s.running {
		return
	}

	msgData := data
	if len(s.header) > 0 {
		msgData = make([]byte, len(s.header)+len(data))
		copy(msgData, s.header)
		copy(msgData[len(s.header):], data)
	}
	msg := &Message{Data: msgData, Flag: flag}

	for _, t := range s.udpTargets {
		if (t.mask & flag) == flag {
			_, _ = s.connUDP.WriteToUDP(msgData, t.addr)
		}
	}

	for _, c := range s.tcpClients {
		if (c.mask & flag) == flag {
			select {
			case c.queue <- msg:
			default:
				// Queue full: drop rather than stall the estimator.
			}
		}
	}
}

func (c *tcpClient) start() {
	c.running = true
	c.wg.Add(1)
	go c.loop()
}

func (c *tcpClient) stop() {
	c.running = false
	close(c.queue)
	c.wg.Wait()
}

func (c *tcpClient) loop() {
	defer c.wg.Done()
	var conn net.Conn
	var err error

	connect := func() bool {
		if conn != nil {
			return true
		}
		conn, err = net.DialTimeout("tcp", c.addr, 2*time.Second)
		return err == nil
	}

	for msg := range c.queue {
		if !c.running {
			break
		}

		if !connect() {
			time.Sleep(500 * time.Millisecond)
			if !connect() {
				continue // drop this message
			}
		}

		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if _, err = conn.Write(msg.Data); err != nil {
			log.Printf("feed write to %s failed: %v", c.addr, err)
			conn.Close()
			conn = nil
			time.Sleep(100 * time.Millisecond)
		}
	}
	if conn != nil {
		conn.Close()
	}
}
