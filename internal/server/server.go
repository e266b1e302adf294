// Package server is the TCP front door for a single matching engine: it
// accepts client connections, decodes wire.DecodedMessage requests off
// each connection and dispatches them to an engine.Engine, and forwards
// resulting trades back to every connected client as execution reports.
//
// Grounded on the teacher's internal/net/server.go (worker pool of
// connection handlers feeding a single session-handling goroutine, all
// supervised by a tomb.v2), adapted from the teacher's toy
// PlaceOrder/CancelOrder/LogBook Engine interface to garm's
// engine.Engine, and extended to also relay the Trades() channel to
// clients rather than only handling inbound reads.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"garm/internal/domain"
	"garm/internal/engine"
	"garm/internal/wire"
)

const (
	maxRecvSize        = 4 * 1024
	defaultNWorkers    = 10
	defaultConnTimeout = 30 * time.Second
)

var ErrImproperConversion = errors.New("server: improper task conversion")

// clientSession tracks one connected client, keyed by its remote address.
type clientSession struct {
	conn net.Conn
}

// clientMessage links a decoded wire message to the connection it arrived on.
type clientMessage struct {
	clientAddress string
	message       wire.DecodedMessage
}

// Server bridges TCP connections to a single engine.Engine instance.
type Server struct {
	address string
	port    int
	engine  *engine.Engine

	pool WorkerPool

	sessionsLock sync.Mutex
	sessions     map[string]clientSession

	inbound chan clientMessage
}

// New constructs a Server for engine, listening on address:port once Run
// is called.
func New(address string, port int, eng *engine.Engine) *Server {
	return &Server{
		address:  address,
		port:     port,
		engine:   eng,
		pool:     NewWorkerPool(defaultNWorkers),
		sessions: make(map[string]clientSession),
		inbound:  make(chan clientMessage, 64),
	}
}

// Run listens and serves connections until ctx is cancelled. It blocks.
func (s *Server) Run(ctx context.Context) error {
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	defer listener.Close()

	t.Go(func() error {
		s.pool.Setup(t, s.handleConnection)
		return nil
	})
	t.Go(func() error {
		return s.dispatchLoop(t)
	})
	t.Go(func() error {
		return s.relayTrades(t)
	})

	log.Info().Str("address", s.address).Int("port", s.port).Msg("matching server listening")

	for {
		select {
		case <-ctx.Done():
			return listener.Close()
		default:
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return nil
				default:
					log.Error().Err(err).Msg("error accepting connection")
					continue
				}
			}
			s.addSession(conn)
			s.pool.AddTask(conn)
		}
	}
}

// relayTrades forwards every executed trade to every connected client as
// an ExecutionReport, once per side.
func (s *Server) relayTrades(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case trade := <-s.engine.Trades():
			s.broadcast(wire.Report{
				MessageType: wire.ExecutionReport,
				OrderID:     trade.BuyOrderID,
				OrderStatus: domain.PartiallyFilled,
				Side:        domain.Buy,
				Quantity:    trade.Quantity,
				Price:       trade.Price,
			})
			s.broadcast(wire.Report{
				MessageType: wire.ExecutionReport,
				OrderID:     trade.SellOrderID,
				OrderStatus: domain.PartiallyFilled,
				Side:        domain.Sell,
				Quantity:    trade.Quantity,
				Price:       trade.Price,
			})
		}
	}
}

func (s *Server) broadcast(report wire.Report) {
	s.sessionsLock.Lock()
	defer s.sessionsLock.Unlock()

	payload := report.Serialize()
	for addr, sess := range s.sessions {
		if _, err := sess.conn.Write(payload); err != nil {
			log.Error().Err(err).Str("address", addr).Msg("failed to relay report")
		}
	}
}

// dispatchLoop is the single consumer of decoded inbound messages; it
// translates each into an Engine call and replies with an ack or error.
func (s *Server) dispatchLoop(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case msg := <-s.inbound:
			s.dispatch(msg)
		}
	}
}

func (s *Server) dispatch(msg clientMessage) {
	switch msg.message.Type {
	case wire.NewOrder:
		m := msg.message.NewOrder
		orderID, err := s.engine.SubmitOrder(domain.NewOrderRequest{
			Side:          m.Side,
			Type:          m.Type,
			Quantity:      m.Quantity,
			Price:         m.Price,
			StopPrice:     m.StopPrice,
			ClientID:      msg.clientAddress,
			ClientOrderID: m.ClientOrderID,
		})
		s.reply(msg.clientAddress, orderID, err)
	case wire.CancelOrder:
		err := s.engine.CancelOrder(msg.message.Cancel.OrderID)
		s.reply(msg.clientAddress, msg.message.Cancel.OrderID, err)
	case wire.ModifyOrder:
		m := msg.message.Modify
		var qtyPtr *int64
		if m.HasQuantity {
			qtyPtr = &m.Quantity
		}
		var pricePtr *domain.Ticks
		if m.HasPrice {
			pricePtr = &m.Price
		}
		err := s.engine.ModifyOrder(m.OrderID, qtyPtr, pricePtr)
		s.reply(msg.clientAddress, m.OrderID, err)
	case wire.SnapshotRequest:
		// Snapshot requests are decoded but not answered: the report
		// stream carries no depth data, and matchctl has no depth query.
	default:
		log.Error().Int("type", int(msg.message.Type)).Msg("unhandled message type")
	}
}

func (s *Server) reply(clientAddress string, orderID uint64, err error) {
	report := wire.Report{OrderID: orderID}
	if err != nil {
		report.MessageType = wire.ErrorReport
		report.Err = err.Error()
	} else {
		report.MessageType = wire.AckReport
	}

	s.sessionsLock.Lock()
	sess, ok := s.sessions[clientAddress]
	s.sessionsLock.Unlock()
	if !ok {
		return
	}
	if _, err := sess.conn.Write(report.Serialize()); err != nil {
		log.Error().Err(err).Str("address", clientAddress).Msg("failed to send reply")
	}
}

// handleConnection reads one message off conn, forwards it to
// dispatchLoop, and re-queues conn for its next message. Errors reading
// or decoding close and drop the session; they are not fatal to the pool.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}

	select {
	case <-t.Dying():
		return nil
	default:
	}

	if err := conn.SetDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		log.Error().Err(err).Msg("failed to set connection deadline")
	}

	buf := make([]byte, maxRecvSize)
	n, err := conn.Read(buf)
	if err != nil {
		s.removeSession(conn.RemoteAddr().String())
		conn.Close()
		return nil
	}

	decoded, err := wire.Decode(buf[:n])
	if err != nil {
		log.Error().Err(err).Str("address", conn.RemoteAddr().String()).Msg("failed to decode message")
		s.removeSession(conn.RemoteAddr().String())
		conn.Close()
		return nil
	}

	s.inbound <- clientMessage{clientAddress: conn.RemoteAddr().String(), message: decoded}
	s.pool.AddTask(conn)
	return nil
}

func (s *Server) addSession(conn net.Conn) {
	s.sessionsLock.Lock()
	defer s.sessionsLock.Unlock()
	s.sessions[conn.RemoteAddr().String()] = clientSession{conn: conn}
}

func (s *Server) removeSession(address string) {
	s.sessionsLock.Lock()
	defer s.sessionsLock.Unlock()
	delete(s.sessions, address)
}
