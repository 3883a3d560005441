package modbus

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/KevinKickass/OpenFieldSim/internal/registers"
	"github.com/tbrandon/mbserver"
	"go.uber.org/zap"
)

// Server exposes one device's register store as a Modbus TCP slave. Holding
// and input registers are the same cells; the engine owns the store and the
// server only reads it, except for master writes to command registers.
type Server struct {
	address string
	store   *registers.Store
	logger  *zap.Logger
	mb      *mbserver.Server

	mu      sync.Mutex
	serving bool
}

func NewServer(address string, store *registers.Store, logger *zap.Logger) *Server {
	s := &Server{
		address: address,
		store:   store,
		logger:  logger.With(zap.String("address", address)),
		mb:      mbserver.NewServer(),
	}

	s.mb.RegisterFunctionHandler(FuncCodeReadHoldingRegisters, s.readRegisters)
	s.mb.RegisterFunctionHandler(FuncCodeReadInputRegisters, s.readRegisters)
	s.mb.RegisterFunctionHandler(FuncCodeWriteSingleRegister, s.writeSingleRegister)
	s.mb.RegisterFunctionHandler(FuncCodeWriteMultipleRegisters, s.writeMultipleRegisters)

	return s
}

func (s *Server) Address() string { return s.address }

func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.serving {
		return nil
	}

	if err := s.mb.ListenTCP(s.address); err != nil {
		return fmt.Errorf("modbus listen on %s: %w", s.address, err)
	}
	s.serving = true

	s.logger.Info("Modbus server listening")
	return nil
}

func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.serving {
		return
	}
	s.mb.Close()
	s.serving = false

	s.logger.Info("Modbus server stopped")
}

func (s *Server) Serving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serving
}

func (s *Server) readRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	return handleRead(s.store, frame.GetData())
}

func (s *Server) writeSingleRegister(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data, exc := handleWriteSingle(s.store, frame.GetData())
	if exc == &mbserver.Success {
		s.logger.Debug("Register written by master",
			zap.Uint16("register", binary.BigEndian.Uint16(data[0:2])),
			zap.Uint16("value", binary.BigEndian.Uint16(data[2:4])))
	}
	return data, exc
}

func (s *Server) writeMultipleRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	return handleWriteMultiple(s.store, frame.GetData())
}

// handleRead serves FC 03 / FC 04: start(2) quantity(2).
func handleRead(store *registers.Store, data []byte) ([]byte, *mbserver.Exception) {
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	start := binary.BigEndian.Uint16(data[0:2])
	quantity := binary.BigEndian.Uint16(data[2:4])

	if quantity == 0 || quantity > MaxReadQuantity {
		return []byte{}, &mbserver.IllegalDataValue
	}

	values, err := store.Read(start, quantity)
	if err != nil {
		return []byte{}, &mbserver.IllegalDataAddress
	}

	return append([]byte{byte(2 * quantity)}, encodeRegisters(values)...), &mbserver.Success
}

// handleWriteSingle serves FC 06: address(2) value(2). The response echoes the
// request.
func handleWriteSingle(store *registers.Store, data []byte) ([]byte, *mbserver.Exception) {
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	address := binary.BigEndian.Uint16(data[0:2])
	value := binary.BigEndian.Uint16(data[2:4])

	if err := store.Write(address, value); err != nil {
		return []byte{}, &mbserver.IllegalDataAddress
	}

	return data[0:4], &mbserver.Success
}

// handleWriteMultiple serves FC 16: address(2) quantity(2) byte count(1)
// values. All cells are written with one store call.
func handleWriteMultiple(store *registers.Store, data []byte) ([]byte, *mbserver.Exception) {
	if len(data) < 5 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	address := binary.BigEndian.Uint16(data[0:2])
	quantity := binary.BigEndian.Uint16(data[2:4])
	byteCount := int(data[4])

	if quantity == 0 || quantity > MaxWriteQuantity ||
		byteCount != 2*int(quantity) || len(data) < 5+byteCount {
		return []byte{}, &mbserver.IllegalDataValue
	}

	if err := store.Write(address, decodeRegisters(data[5:5+byteCount])...); err != nil {
		return []byte{}, &mbserver.IllegalDataAddress
	}

	return data[0:4], &mbserver.Success
}
