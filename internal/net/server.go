package net

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	. "fractal/internal/common"
	"fractal/internal/engine"
	"fractal/internal/utils"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const (
	MAX_RECV_SIZE       = 80 * 1024
	defaultNWorkers     = 10
	defaultConnTimeout  = 30 * time.Second
	defaultWriteTimeout = 5 * time.Second
)

var (
	ErrImproperConversion = errors.New("improper type conversion")
	ErrClientDoesNotExist = errors.New("client does not exist")
)

// ClientSession contains relevant information pertaining to an individual
// connected TCP session.
type ClientSession struct {
	conn      net.Conn
	writeLock sync.Mutex
}

func (c *ClientSession) write(body []byte) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
		return err
	}
	return WriteFrame(c.conn, body)
}

// ClientMessage links a message to the client sending it.
type ClientMessage struct {
	clientAddress string
	message       Message
}

type Options struct {
	Workers     uint          // Connection reader workers
	ConnTimeout time.Duration // A session idle for longer is dropped
}

// Server is the TCP façade in front of the engine. Connections are read by a
// pool of workers, but every request is applied by the single session
// handler goroutine, so the engine sees one operation at a time.
//
// The caller named in each frame is trusted as is. The server must sit behind
// a transport that authenticates clients before admin or venue access is exposed.
type Server struct {
	address            string
	port               int
	engine             *engine.Engine
	pool               utils.WorkerPool
	connTimeout        time.Duration
	cancel             context.CancelFunc
	clientSessions     map[string]*ClientSession
	clientSessionsLock sync.Mutex
	clientMessages     chan ClientMessage

	ready    chan struct{}
	listener net.Listener
}

func New(address string, port int, eng *engine.Engine, opts Options) *Server {
	if opts.Workers == 0 {
		opts.Workers = defaultNWorkers
	}
	if opts.ConnTimeout == 0 {
		opts.ConnTimeout = defaultConnTimeout
	}
	return &Server{
		address:        address,
		port:           port,
		engine:         eng,
		pool:           utils.NewWorkerPool(opts.Workers),
		connTimeout:    opts.ConnTimeout,
		clientSessions: make(map[string]*ClientSession),
		clientMessages: make(chan ClientMessage, 1),
		ready:          make(chan struct{}),
	}
}

// Addr blocks until the server is listening and returns its address, or nil
// if listening failed.
func (s *Server) Addr() net.Addr {
	<-s.ready
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Shutdown() {
	log.Info().Msg("server shutting down")
	if s.cancel != nil {
		s.cancel()
	}
}

// Run serves until ctx is cancelled or Shutdown is called.
func (s *Server) Run(ctx context.Context) error {
	// Setup a cancel on the context for future shutdown.
	ctx, s.cancel = context.WithCancel(ctx)
	defer s.cancel()
	t, ctx := tomb.WithContext(ctx)

	// Start a tcp listener.
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		close(s.ready)
		return fmt.Errorf("unable to start listener: %w", err)
	}
	s.listener = listener
	close(s.ready)

	// Start the worker pool.
	s.pool.Setup(t, s.handleConnection)

	// Start the session handler.
	t.Go(func() error {
		return s.sessionHandler(t)
	})

	// Unblock Accept and hang up on clients once dying.
	t.Go(func() error {
		<-t.Dying()
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
		s.closeClientSessions()
		return nil
	})

	log.Info().Str("address", listener.Addr().String()).Msg("server running")

	// Start accepting connections.
	for t.Alive() {
		conn, err := listener.Accept()
		if err != nil {
			if !t.Alive() {
				break
			}
			log.Error().Err(err).Msg("error accepting client")
			continue
		}

		log.Info().
			Str("address", conn.RemoteAddr().String()).
			Msg("new client added")
		// Add the client to client sessions we are tracking.
		// We expect to potentially maintain a long TCP session.
		s.addClientSession(conn)

		// Pass over the connection to be read from.
		s.pool.AddTask(t, conn)
	}

	t.Kill(nil)
	if err := t.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// ReportEvent broadcasts a committed engine event to every session. It is
// called from the session handler while it applies a request.
func (s *Server) ReportEvent(event Event) {
	report := Report{MessageType: EventReport, Payload: EncodeEvent(event)}
	body := report.Serialize()

	for address, client := range s.sessionsSnapshot() {
		if err := client.write(body); err != nil {
			log.Error().Err(err).Str("address", address).Msg("unable to send event")
			s.deleteClientSession(address)
		}
	}
}

// Report sends a report to one client.
func (s *Server) Report(clientAddress string, report Report) error {
	s.clientSessionsLock.Lock()
	client, ok := s.clientSessions[clientAddress]
	s.clientSessionsLock.Unlock()
	if !ok {
		return ErrClientDoesNotExist
	}

	if err := client.write(report.Serialize()); err != nil {
		s.deleteClientSession(clientAddress)
		return fmt.Errorf("unable to send report: %w", err)
	}
	return nil
}

// sessionHandler applies incoming messages from clients one at a time and
// replies to the sender. Messages are received from the pool of workers.
func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case message := <-s.clientMessages:
			report := s.apply(message.message)
			if err := s.Report(message.clientAddress, report); err != nil {
				log.Error().
					Err(err).
					Str("address", message.clientAddress).
					Msg("unable to reply")
			}
		}
	}
}

// apply runs one request against the engine.
func (s *Server) apply(msg Message) Report {
	auth := engine.As(msg.GetCaller())
	request := msg.GetType()

	var payload []byte
	var err error
	switch m := msg.(type) {
	case SetVenueMessage:
		err = s.engine.SetVenue(auth, m.Venue)
	case MintMessage:
		var id ItemID
		if id, err = s.engine.Mint(auth, m.Metadata); err == nil {
			payload = EncodeItem(id)
		}
	case EnableMessage:
		err = s.engine.EnableItem(auth, m.Item)
	case ListMessage:
		err = s.engine.ListForTrade(auth, m.Item, m.Owner, m.Amount, m.UnitPrice)
	case DelistMessage:
		err = s.engine.Delist(auth, m.Item, m.Owner, m.Amount)
	case UpdatePriceMessage:
		var stats PriceStats
		if stats, err = s.engine.UpdatePrice(auth, m.Item, m.UnitPrice, m.Amount); err == nil {
			payload = EncodeStats(stats)
		}
	case TradeMessage:
		var trade Trade
		if trade, err = s.engine.ExecuteTrade(auth, m.From, m.To, m.Item, m.UnitPrice, m.Amount); err == nil {
			payload = EncodeTrade(trade)
		}
	case QueryMessage:
		payload, err = s.query(m)
	case BaseMessage:
		digest := s.engine.StateDigest()
		payload = digest[:]
	default:
		err = fmt.Errorf("%w: %T", ErrImproperConversion, msg)
	}

	if err != nil {
		log.Warn().
			Err(err).
			Str("request", request.String()).
			Str("caller", auth.Caller.Hex()).
			Msg("request rejected")
		return errorReport(request, err)
	}
	log.Debug().
		Str("request", request.String()).
		Str("caller", auth.Caller.Hex()).
		Msg("request applied")
	return ackReport(request, payload)
}

func (s *Server) query(m QueryMessage) ([]byte, error) {
	switch m.TypeOf {
	case QueryBalance:
		bal, err := s.engine.BalanceInfo(m.Item, m.Owner)
		return EncodeBalance(bal), err
	case QueryPrice:
		stats, err := s.engine.PriceInfo(m.Item)
		return EncodeStats(stats), err
	case QueryOwners:
		owners, err := s.engine.OwnersOf(m.Item)
		return EncodeAddresses(owners), err
	case QueryItems:
		return EncodeItems(s.engine.ItemsOf(m.Owner)), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalidMessageType, m.TypeOf)
}

// handleConnection is a short-lived worker method which reads the next message off the
// connection, parses and passes it forward to sessionHandler to handle it. If the connection
// dies, the client session is cleaned up. Malformed messages are answered with an error
// report and the session is kept.
// Note, any error returned from here is fatal.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}
	address := conn.RemoteAddr().String()

	// Set max read timeout.
	if err := conn.SetReadDeadline(time.Now().Add(s.connTimeout)); err != nil {
		log.Error().
			Str("address", address).
			Err(err).
			Msg("failed setting deadline for connection")
		s.deleteClientSession(address)
		return nil
	}

	body, err := ReadFrame(conn, MAX_RECV_SIZE)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			log.Error().
				Err(err).
				Str("address", address).
				Msg("error reading from connection")
		}
		// If a read from a client fails, it is likely that the client
		// has exited. Clean up the client session.
		s.deleteClientSession(address)
		return nil
	}

	message, err := parseMessage(body)
	if err != nil {
		log.Error().
			Err(err).
			Str("address", address).
			Msg("error parsing message")
		var request MessageType
		if len(body) >= 2 {
			request = MessageType(uint16(body[0])<<8 | uint16(body[1]))
		}
		if err := s.Report(address, errorReport(request, err)); err != nil {
			return nil
		}
	} else {
		// Pass over to the message handling buffer.
		select {
		case <-t.Dying():
			return nil
		case s.clientMessages <- ClientMessage{message: message, clientAddress: address}:
		}
	}

	// Push the client connection back to handle the next message. Not done
	// inline so a full queue cannot stall every worker.
	go s.pool.AddTask(t, conn)
	return nil
}

// addClientSession is an atomic map add
func (s *Server) addClientSession(conn net.Conn) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	s.clientSessions[conn.RemoteAddr().String()] = &ClientSession{
		conn: conn,
	}
}

// deleteClientSession is an atomic map remove. The connection is closed.
func (s *Server) deleteClientSession(address string) {
	s.clientSessionsLock.Lock()
	client, ok := s.clientSessions[address]
	delete(s.clientSessions, address)
	s.clientSessionsLock.Unlock()

	if ok {
		if err := client.conn.Close(); err != nil {
			log.Debug().Err(err).Str("address", address).Msg("closing connection")
		}
	}
}

func (s *Server) sessionsSnapshot() map[string]*ClientSession {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	sessions := make(map[string]*ClientSession, len(s.clientSessions))
	for address, client := range s.clientSessions {
		sessions[address] = client
	}
	return sessions
}

func (s *Server) closeClientSessions() {
	for address := range s.sessionsSnapshot() {
		s.deleteClientSession(address)
	}
}
