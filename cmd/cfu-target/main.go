// Command cfu-target runs a CFU target engine, either over a real USB HID
// device or over one end of an in-process loopback pair whose other end is
// not connected to anything, so without -hid no host can reach it.
//
// Usage:
//
//	cfu-target -component 1 -version 1.0.0
//	cfu-target -hid -vendor-id 0x045e -hid-product-id 0x0001
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/cfu-project/cfu/pkg/target"
	"github.com/cfu-project/cfu/pkg/target/auth"
	"github.com/cfu-project/cfu/pkg/target/handlers"
	"github.com/cfu-project/cfu/pkg/target/storage"
	"github.com/cfu-project/cfu/pkg/transport"
	"github.com/cfu-project/cfu/pkg/transport/hidtransport"
	"github.com/cfu-project/cfu/pkg/transport/looptransport"
	"github.com/cfu-project/cfu/pkg/wire"
)

func main() {
	componentID := flag.Int("component", 1, "component_id to register")
	versionStr := flag.String("version", "1.0.0", "current firmware version, as major.minor.variant")
	productID := flag.Int("product-id", 1, "product_info.product_id to report")
	useHID := flag.Bool("hid", false, "serve over a real HID device instead of an in-process loopback")
	vendorID := flag.Int("vendor-id", 0, "USB vendor ID (with -hid)")
	hidProductID := flag.Int("hid-product-id", 0, "USB product ID (with -hid)")
	flag.Parse()

	version, err := parseVersion(*versionStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cfu-target: %v\n", err)
		os.Exit(1)
	}

	reg := target.NewRegistry()
	reg.Register(target.Registration{
		ComponentID: uint8(*componentID),
		Handler: &handlers.Primary{
			CurrentVersion:     version,
			CurrentProductInfo: wire.ProductInfo{ProtocolRevision: wire.ProtocolRevision, ProductID: uint16(*productID)},
			CRCOffset:          wire.CrcCheckNotRequired,
			MinAcceptedVersion: version,
		},
	})

	engine := target.NewEngine(reg, storage.NewMemory(), auth.NoOp{})

	var channel transport.Channel
	if *useHID {
		hidChannel, err := hidtransport.Open(uint16(*vendorID), uint16(*hidProductID))
		if err != nil {
			fmt.Fprintf(os.Stderr, "cfu-target: opening hid device: %v\n", err)
			os.Exit(1)
		}
		defer hidChannel.Close()
		channel = hidChannel
	} else {
		self, _ := looptransport.Pair()
		channel = self
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	fmt.Printf("cfu-target: serving component %d at version %s\n", *componentID, version)
	if err := target.Serve(ctx, channel, engine); err != nil {
		fmt.Fprintf(os.Stderr, "cfu-target: serve error: %v\n", err)
		os.Exit(1)
	}
}

func parseVersion(s string) (wire.Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return wire.Version{}, fmt.Errorf("version %q must be major.minor.variant", s)
	}
	major, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return wire.Version{}, fmt.Errorf("invalid major in %q: %w", s, err)
	}
	minor, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return wire.Version{}, fmt.Errorf("invalid minor in %q: %w", s, err)
	}
	variant, err := strconv.ParseUint(parts[2], 10, 8)
	if err != nil {
		return wire.Version{}, fmt.Errorf("invalid variant in %q: %w", s, err)
	}
	return wire.Version{Major: uint8(major), Minor: uint16(minor), Variant: uint8(variant)}, nil
}
