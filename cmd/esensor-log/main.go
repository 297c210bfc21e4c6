// Command esensor-log connects to an Epson sensing device over a serial
// port, configures it, and streams decoded samples to stdout as CSV.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/epson-sensing/esensor/internal/model"
	"github.com/epson-sensing/esensor/internal/samplemux"
	"github.com/epson-sensing/esensor/internal/session"
	"github.com/epson-sensing/esensor/internal/transport"
	"github.com/epson-sensing/esensor/internal/uartport"
	"github.com/epson-sensing/esensor/internal/version"
)

func main() {
	portPath := flag.String("port", "/dev/ttyUSB0", "Serial port device path")
	baud := flag.Int("baud", 460800, "Serial port baud rate")
	modelName := flag.String("model", "", "Device model (empty = autodetect)")
	rate := flag.Float64("rate", 200, "Output rate in sps (RMS/PP rate setting on vibration sensors)")
	filter := flag.String("filter", "", "Filter selection (empty = recommended for rate)")
	samples := flag.Int("samples", 0, "Number of samples to log (0 = until interrupted)")
	uartAuto := flag.Bool("uart-auto", true, "Stream samples without per-sample trigger commands")
	ndflags := flag.Bool("ndflags", false, "Include new-data flags in the burst")
	tempc := flag.Bool("tempc", true, "Include temperature in the burst")
	counter := flag.Bool("counter", true, "Include the sample counter in the burst")
	chksm := flag.Bool("chksm", false, "Include the checksum in the burst")
	bit32 := flag.Bool("32bit", true, "Use 32-bit outputs (IMU only)")
	outputSel := flag.String("output-sel", "", "Vibration output mode (VELOCITY_RAW/RMS/PP, DISP_RAW/RMS/PP)")
	selfTest := flag.Bool("selftest", false, "Run the device self test before sampling")
	dump := flag.Bool("dump", false, "Dump all registers before sampling")
	showVersion := flag.Bool("version", false, "Print the build version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	opts, err := uartport.Options{BaudRate: *baud}.Normalize()
	if err != nil {
		log.Fatalf("port options: %v", err)
	}
	port, err := uartport.Open(*portPath, opts)
	if err != nil {
		log.Fatalf("open %s: %v", *portPath, err)
	}
	defer port.Close()

	tr := transport.New(port)
	if err := tr.Synchronize(transport.DefaultSyncRetries); err != nil {
		log.Fatalf("synchronize: %v", err)
	}

	var c *model.Capability
	var info model.DeviceInfo
	if *modelName != "" {
		c, err = model.Lookup(*modelName)
		if err != nil {
			log.Fatalf("model: %v", err)
		}
		info, err = model.ReadDeviceInfo(tr)
	} else {
		c, info, err = model.Detect(tr)
	}
	if err != nil {
		log.Fatalf("identify device: %v", err)
	}
	log.Printf("device %s serial %s firmware %s", info.ProductID, info.SerialNumber, info.FirmwareVersion)

	sess := session.New(tr, c)
	if err := sess.InitCheck(); err != nil {
		log.Fatalf("init check: %v", err)
	}

	if *selfTest {
		log.Printf("running self test")
		if err := sess.SelfTest(); err != nil {
			log.Fatalf("self test: %v", err)
		}
		log.Printf("self test passed")
	}

	if *dump {
		regs, err := sess.DumpRegisters()
		if err != nil {
			log.Fatalf("register dump: %v", err)
		}
		for _, rv := range regs {
			log.Printf("  %-12s (W%d, %#02x) = %#04x", rv.Name, rv.Window, rv.Addr, rv.Value)
		}
	}

	cfg := session.Config{
		OutputRate:   *rate,
		Filter:       *filter,
		NDFlags:      *ndflags,
		TempC:        *tempc,
		Counter:      *counter,
		Checksum:     *chksm,
		Bit32:        *bit32,
		UartAuto:     *uartAuto,
		OutputSelect: *outputSel,
		Temp16:       true,
	}
	if err := sess.Configure(cfg); err != nil {
		log.Fatalf("configure: %v", err)
	}
	if err := sess.GoTo(session.ModeSampling); err != nil {
		log.Fatalf("start sampling: %v", err)
	}
	defer func() {
		if err := sess.GoTo(session.ModeConfig); err != nil {
			log.Printf("stop sampling: %v", err)
		}
	}()

	fmt.Println(strings.Join(sess.Schema().FieldNames(), ","))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := samplemux.New(sess)
	defer mux.Close()

	id, ch := mux.Subscribe()
	defer mux.Unsubscribe(id)

	monitorDone := make(chan error, 1)
	go func() { monitorDone <- mux.Monitor(ctx) }()

	logged := 0
	for *samples == 0 || logged < *samples {
		select {
		case <-ctx.Done():
			log.Printf("interrupted after %d samples", logged)
			return
		case err := <-monitorDone:
			if err != nil && ctx.Err() == nil {
				log.Fatalf("sample stream: %v", err)
			}
			return
		case sample, ok := <-ch:
			if !ok {
				return
			}
			fmt.Println(formatCSV(sample.Values))
			logged++
		}
	}
	log.Printf("logged %d samples", logged)
}

func formatCSV(values []float64) string {
	fields := make([]string, len(values))
	for i, v := range values {
		fields[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(fields, ",")
}
