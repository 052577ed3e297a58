// Command cfu-host drives a firmware update run against a CFU target,
// either over a real USB HID device or over an in-process loopback
// transport for local testing.
//
// Usage:
//
//	cfu-host -dir ./firmware -offer offer.bin -payload payload.bin
//	cfu-host -hid -vendor-id 0x045e -hid-product-id 0x0001 -dir ./firmware ...
//	cfu-host -force-reset -force-ignore-version -dir ./firmware ...
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/cfu-project/cfu/pkg/host"
	"github.com/cfu-project/cfu/pkg/transport"
	"github.com/cfu-project/cfu/pkg/transport/hidtransport"
	"github.com/cfu-project/cfu/pkg/transport/looptransport"
)

func main() {
	dir := flag.String("dir", ".", "directory containing offer/payload file pairs")
	offerPath := flag.String("offer", "offer.bin", "offer descriptor file, relative to -dir")
	payloadPath := flag.String("payload", "payload.bin", "firmware payload file, relative to -dir")
	resumeOnConnect := flag.Bool("resume-on-connect", false, "skip components already at the offered version")
	skipOptimization := flag.Bool("skip-optimization", false, "treat a SwapPending rejection as already-applied when versions match")
	abortOnFailure := flag.Bool("abort-on-failure", true, "stop the run at the first non-committed, non-skipped component")
	forceReset := flag.Bool("force-reset", false, "set ForceImmediateReset on every offer, asking the target to reset as soon as it commits")
	forceIgnoreVersion := flag.Bool("force-ignore-version", false, "set ForceIgnoreVersion on every offer, bypassing an old-firmware rejection")
	useHID := flag.Bool("hid", false, "drive a real HID device instead of an in-process loopback")
	vendorID := flag.Int("vendor-id", 0, "USB vendor ID (with -hid)")
	hidProductID := flag.Int("hid-product-id", 0, "USB product ID (with -hid)")
	flag.Parse()

	var channel transport.Channel
	if *useHID {
		hidChannel, err := hidtransport.Open(uint16(*vendorID), uint16(*hidProductID))
		if err != nil {
			fmt.Fprintf(os.Stderr, "cfu-host: opening hid device: %v\n", err)
			os.Exit(1)
		}
		defer hidChannel.Close()
		channel = hidChannel
	} else {
		_, self := looptransport.Pair()
		channel = self
		fmt.Fprintln(os.Stderr, "cfu-host: no -hid device requested, driving an unconnected loopback endpoint; pass -hid for a real run")
	}

	cfg := host.NewConfig(
		host.WithResumeOnConnect(*resumeOnConnect),
		host.WithSkipOptimization(*skipOptimization),
	)
	engine := host.NewEngine(channel, cfg, nil)

	source := &host.FileImageSource{
		FS: os.DirFS(*dir),
		Entries: []host.FileEntry{
			{OfferPath: *offerPath, PayloadPath: *payloadPath},
		},
	}
	components, err := source.Components()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cfu-host: loading components: %v\n", err)
		os.Exit(1)
	}
	for i := range components {
		components[i].Offer.ForceImmediateReset = *forceReset
		components[i].Offer.ForceIgnoreVersion = *forceIgnoreVersion
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if *resumeOnConnect {
		components, err = engine.ResumeOnConnect(ctx, components)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cfu-host: resume-on-connect: %v\n", err)
			os.Exit(1)
		}
	}

	results := engine.RunAll(ctx, components, *abortOnFailure)

	failed := false
	for _, result := range results {
		fmt.Printf("cfu-host: component %d: %s", result.Offer.ComponentID, result.Outcome)
		if result.RejectReason != 0 {
			fmt.Printf(" (%s)", result.RejectReason)
		}
		if result.Err != nil {
			fmt.Printf(": %v", result.Err)
			failed = true
		}
		fmt.Println()
	}
	if failed {
		os.Exit(1)
	}
}
