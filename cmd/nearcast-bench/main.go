// nearcast-bench exercises the capture->scale->encode pipeline offline, for
// local tuning of quality/bitrate/resolution settings without a peer on the
// other end. Mirrors the teacher's cmd/test-features switch-on-argv shape.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/nearcast/nearcast/internal/capture"
	"github.com/nearcast/nearcast/internal/config"
	"github.com/nearcast/nearcast/internal/encoder"
	"github.com/nearcast/nearcast/internal/scaler"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: nearcast-bench <displays|pipeline> [frames] [resolution-index] [quality]")
		return
	}

	switch os.Args[1] {
	case "displays":
		listDisplays()
	case "pipeline":
		runPipeline(os.Args[2:])
	default:
		fmt.Println("Unknown test:", os.Args[1])
	}
}

func listDisplays() {
	cap, err := capture.New()
	if err != nil {
		fmt.Printf("Error creating capturer: %v\n", err)
		return
	}
	displays, err := cap.ListDisplays()
	if err != nil {
		fmt.Printf("Error listing displays: %v\n", err)
		return
	}
	for _, d := range displays {
		fmt.Printf("%d: %s %dx%d primary=%v\n", d.ID, d.Name, d.Width, d.Height, d.Primary)
	}
}

// runPipeline captures frameCount frames from the primary display, scales
// each to the requested resolution box, encodes it, and reports the total
// elapsed time, the achieved frame rate, and the resulting average bitrate.
func runPipeline(args []string) {
	frameCount := 60
	resIndex := 3
	quality := "auto"
	if len(args) >= 1 {
		fmt.Sscanf(args[0], "%d", &frameCount)
	}
	if len(args) >= 2 {
		fmt.Sscanf(args[1], "%d", &resIndex)
	}
	if len(args) >= 3 {
		quality = args[2]
	}
	if resIndex < 0 || resIndex >= len(config.ResolutionBoxes) {
		resIndex = 3
	}

	cap, err := capture.New()
	if err != nil {
		fmt.Printf("Error creating capturer: %v\n", err)
		return
	}
	displays, err := cap.ListDisplays()
	if err != nil || len(displays) == 0 {
		fmt.Printf("Error listing displays: %v\n", err)
		return
	}
	primary := displays[0]
	for _, d := range displays {
		if d.Primary {
			primary = d
			break
		}
	}

	if err := cap.Start(primary.ID); err != nil {
		fmt.Printf("Error starting capture: %v\n", err)
		return
	}
	defer cap.Stop()

	box := config.ResolutionBoxes[resIndex]
	sc := scaler.New(primary.Width, primary.Height, box[0], box[1])

	enc, err := encoder.New(encoder.Config{
		Width:   sc.DstW(),
		Height:  sc.DstH(),
		FPS:     30,
		Bitrate: config.QualityBitrate(quality),
	})
	if err != nil {
		fmt.Printf("Error creating encoder: %v\n", err)
		return
	}
	defer enc.Close()

	fmt.Printf("capture %dx%d -> scale %dx%d (%s) -> encode via %s\n",
		primary.Width, primary.Height, sc.DstW(), sc.DstH(), sc.Mode(), enc.Info())

	var totalBytes int
	start := time.Now()
	for i := 0; i < frameCount; i++ {
		frame, err := cap.CaptureFrame()
		if err != nil {
			fmt.Printf("frame %d: capture error: %v\n", i, err)
			continue
		}
		pixels := frame.Pixels
		if sc.NeedsScaling() {
			pixels, err = sc.Scale(pixels)
			if err != nil {
				fmt.Printf("frame %d: scale error: %v\n", i, err)
				continue
			}
		}
		encoded, err := enc.Encode(pixels, frame.TimestampMs)
		if err != nil {
			fmt.Printf("frame %d: encode error: %v\n", i, err)
			continue
		}
		totalBytes += encoded.Size
	}
	elapsed := time.Since(start)

	fmt.Printf("\n%d frames in %s (%.1f fps)\n", frameCount, elapsed, float64(frameCount)/elapsed.Seconds())
	fmt.Printf("%d bytes encoded, avg bitrate %.2f Mbps\n",
		totalBytes, float64(totalBytes*8)/elapsed.Seconds()/1_000_000)
}
