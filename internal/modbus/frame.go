package modbus

import (
	"encoding/binary"
	"fmt"
)

// ModbusFrame is an MBAP header (7 bytes) followed by the PDU.
type ModbusFrame struct {
	TransactionID uint16 // request/response correlation
	ProtocolID    uint16 // always 0x0000
	Length        uint16 // unit id + PDU
	UnitID        uint8
	FunctionCode  uint8
	Data          []byte
}

const (
	FuncCodeReadHoldingRegisters   = 0x03
	FuncCodeReadInputRegisters     = 0x04
	FuncCodeWriteSingleRegister    = 0x06
	FuncCodeWriteMultipleRegisters = 0x10

	exceptionFlag = 0x80

	// MaxReadQuantity is the largest register count a single read may request.
	MaxReadQuantity = 125
	// MaxWriteQuantity is the largest register count of one FC 16 request.
	MaxWriteQuantity = 123

	mbapHeaderSize = 7
	maxFrameSize   = 260
)

// ExceptionError is returned when the server answers with an exception PDU.
type ExceptionError struct {
	FunctionCode uint8
	Code         uint8
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus exception 0x%02X for function 0x%02X", e.Code, e.FunctionCode)
}

func (f *ModbusFrame) Encode() []byte {
	f.Length = uint16(len(f.Data) + 2)

	frame := make([]byte, mbapHeaderSize+1+len(f.Data))

	binary.BigEndian.PutUint16(frame[0:2], f.TransactionID)
	binary.BigEndian.PutUint16(frame[2:4], f.ProtocolID)
	binary.BigEndian.PutUint16(frame[4:6], f.Length)
	frame[6] = f.UnitID

	frame[7] = f.FunctionCode
	copy(frame[8:], f.Data)

	return frame
}

func DecodeFrame(data []byte) (*ModbusFrame, error) {
	if len(data) < mbapHeaderSize+1 {
		return nil, fmt.Errorf("frame too short: %d bytes", len(data))
	}

	frame := &ModbusFrame{
		TransactionID: binary.BigEndian.Uint16(data[0:2]),
		ProtocolID:    binary.BigEndian.Uint16(data[2:4]),
		Length:        binary.BigEndian.Uint16(data[4:6]),
		UnitID:        data[6],
		FunctionCode:  data[7],
	}

	if frame.ProtocolID != 0x0000 {
		return nil, fmt.Errorf("invalid protocol ID: 0x%04X", frame.ProtocolID)
	}

	if len(data) > mbapHeaderSize+1 {
		frame.Data = data[mbapHeaderSize+1:]
	}

	return frame, nil
}

// Exception returns the exception carried by a response frame, or nil.
func (f *ModbusFrame) Exception() error {
	if f.FunctionCode&exceptionFlag == 0 {
		return nil
	}
	code := uint8(0)
	if len(f.Data) > 0 {
		code = f.Data[0]
	}
	return &ExceptionError{FunctionCode: f.FunctionCode &^ exceptionFlag, Code: code}
}

func newRequest(unitID uint8, functionCode uint8, data []byte) *ModbusFrame {
	return &ModbusFrame{
		ProtocolID:   0x0000,
		UnitID:       unitID,
		FunctionCode: functionCode,
		Data:         data,
	}
}

func readRequest(functionCode uint8, unitID uint8, startAddr uint16, quantity uint16) *ModbusFrame {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], startAddr)
	binary.BigEndian.PutUint16(data[2:4], quantity)
	return newRequest(unitID, functionCode, data)
}

func ReadHoldingRegistersRequest(unitID uint8, startAddr uint16, quantity uint16) *ModbusFrame {
	return readRequest(FuncCodeReadHoldingRegisters, unitID, startAddr, quantity)
}

func ReadInputRegistersRequest(unitID uint8, startAddr uint16, quantity uint16) *ModbusFrame {
	return readRequest(FuncCodeReadInputRegisters, unitID, startAddr, quantity)
}

func WriteSingleRegisterRequest(unitID uint8, addr uint16, value uint16) *ModbusFrame {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], addr)
	binary.BigEndian.PutUint16(data[2:4], value)
	return newRequest(unitID, FuncCodeWriteSingleRegister, data)
}

// WriteMultipleRegistersRequest builds an FC 16 request. 32-bit values are
// written this way so both words land in one request.
func WriteMultipleRegistersRequest(unitID uint8, addr uint16, values []uint16) *ModbusFrame {
	data := make([]byte, 5+2*len(values))
	binary.BigEndian.PutUint16(data[0:2], addr)
	binary.BigEndian.PutUint16(data[2:4], uint16(len(values)))
	data[4] = byte(2 * len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(data[5+2*i:], v)
	}
	return newRequest(unitID, FuncCodeWriteMultipleRegisters, data)
}

// ParseRegisterResponse decodes the byte count prefixed payload of a FC 03/04
// response.
func (f *ModbusFrame) ParseRegisterResponse() ([]uint16, error) {
	if err := f.Exception(); err != nil {
		return nil, err
	}
	if len(f.Data) < 1 {
		return nil, fmt.Errorf("response too short")
	}

	byteCount := int(f.Data[0])
	if byteCount%2 != 0 || len(f.Data) < byteCount+1 {
		return nil, fmt.Errorf("incomplete response data")
	}

	return decodeRegisters(f.Data[1 : 1+byteCount]), nil
}

func decodeRegisters(data []byte) []uint16 {
	values := make([]uint16, len(data)/2)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(data[2*i : 2*i+2])
	}
	return values
}

func encodeRegisters(values []uint16) []byte {
	data := make([]byte, 2*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(data[2*i:], v)
	}
	return data
}
