package handler

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strconv"

	"scenesound/internal/config"
	"scenesound/internal/logger"
)

const maxDatagram = 65535

var (
	jpegHeader = []byte{0xFF, 0xD8}
	jpegFooter = []byte{0xFF, 0xD9}
)

// FrameSink receives complete frames reassembled from UDP packets.
type FrameSink interface {
	HandleFrame(ctx context.Context, deviceID string, frame []byte)
}

// frameAssembler rebuilds JPEG frames split over several packets, one buffer per device.
// A packet starting with the JPEG SOI marker starts a new frame; one ending with EOI completes it.
type frameAssembler struct {
	buffers  map[string]*bytes.Buffer
	maxFrame int
}

func newFrameAssembler(maxFrame int) *frameAssembler {
	return &frameAssembler{buffers: make(map[string]*bytes.Buffer), maxFrame: maxFrame}
}

// Write appends a packet and returns the frame it completes, if any.
func (a *frameAssembler) Write(deviceID string, data []byte) ([]byte, bool) {
	imgBuffer, ok := a.buffers[deviceID]
	if !ok {
		imgBuffer = new(bytes.Buffer)
		a.buffers[deviceID] = imgBuffer
	}

	if bytes.HasPrefix(data, jpegHeader) {
		imgBuffer.Reset()
	} else if imgBuffer.Len() == 0 {
		// Middle of a frame whose start was lost.
		return nil, false
	}
	imgBuffer.Write(data)

	if a.maxFrame > 0 && imgBuffer.Len() > a.maxFrame {
		imgBuffer.Reset()
		return nil, false
	}

	if !bytes.HasSuffix(data, jpegFooter) {
		return nil, false
	}
	fullFrame := make([]byte, imgBuffer.Len())
	copy(fullFrame, imgBuffer.Bytes())
	imgBuffer.Reset()
	return fullFrame, true
}

// UDPCameraHandler listens for UDP packets from capture devices, reconstructs JPEG frames
// and hands complete frames to sink. It returns when ctx is done.
func UDPCameraHandler(ctx context.Context, sink FrameSink, logger *logger.Logger, config *config.Config) error {
	port := strconv.Itoa(config.UDPPort)

	addr, err := net.ResolveUDPAddr("udp", ":"+port)
	if err != nil {
		logger.Error("Failed to resolve UDP address: %v", err)
		return err
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		logger.Error("Failed to listen on UDP port %s: %v", port, err)
		return err
	}

	logger.Info("UDP frame listener started on port %s", port)
	return serveUDP(ctx, conn, sink, logger, config)
}

func serveUDP(ctx context.Context, conn *net.UDPConn, sink FrameSink, logger *logger.Logger, config *config.Config) error {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buffer := make([]byte, maxDatagram)
	assembler := newFrameAssembler(int(config.MaxUploadBytes))

	for {
		n, remoteAddr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logger.Info("UDP frame listener stopped")
				return nil
			}
			logger.Error("Error reading UDP packet: %v", err)
			continue
		}

		ip := remoteAddr.IP.String()
		deviceID, exists := config.DeviceNames[ip]
		if !exists {
			deviceID = "unknown_" + ip
		}

		if frame, ok := assembler.Write(deviceID, buffer[:n]); ok {
			sink.HandleFrame(ctx, deviceID, frame)
		}
	}
}
