// Command visiondemo runs a small compute pipeline on the simulation
// backend: an image source feeding a brightness program, with the result
// read back to the host.
package main

import (
	"flag"
	"fmt"
	"image"
	"log"
	"log/slog"
	"os"

	"github.com/gogpu/vision"
	"github.com/gogpu/vision/backend/sim"
	"github.com/gogpu/vision/gpucore"
	"github.com/gogpu/vision/pipeline"
	"github.com/gogpu/vision/program"
	"github.com/gogpu/vision/readback"
	"github.com/gogpu/vision/shader"
	"github.com/gogpu/vision/texture"
)

const brightenShader = `
@group(0) @binding(0) var<uniform> gain: f32;
@group(0) @binding(1) var src: texture_2d<f32>;
@group(0) @binding(2) var dst: texture_storage_2d<rgba8unorm, write>;

@compute @workgroup_size(8, 8)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    if (gid.x >= @WIDTH@u || gid.y >= @HEIGHT@u) {
        return;
    }
    let p = textureLoad(src, vec2<i32>(gid.xy), 0);
    textureStore(dst, vec2<i32>(gid.xy), vec4<f32>(p.rgb * gain, p.a));
}
`

func main() {
	var (
		width   = flag.Int("width", 256, "frame width in pixels")
		height  = flag.Int("height", 256, "frame height in pixels")
		gain    = flag.Float64("gain", 1.5, "brightness gain")
		verbose = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	if *verbose {
		vision.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	dev := sim.New()
	defer dev.Close()

	eng, err := vision.New(vision.WithDevice(dev))
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	defer eng.Close()

	if err := run(eng, *width, *height, float32(*gain)); err != nil {
		log.Fatal(err)
	}
}

func run(eng *vision.Engine, w, h int, gain float32) error {
	prog, err := eng.NewProgram(program.Desc{
		Label:  "brighten",
		Source: brightenShader,
		Defines: []shader.Define{
			{Name: "WIDTH", Value: w},
			{Name: "HEIGHT", Value: h},
		},
		Width:    w,
		Height:   h,
		Format:   gpucore.TextureFormatRGBA8,
		Uniforms: []program.UniformDecl{{Name: "gain", Kind: program.KindFloat}},
		Inputs:   []string{"src"},
	})
	if err != nil {
		return fmt.Errorf("program: %w", err)
	}
	defer prog.Close()

	src := pipeline.NewSource("camera", pipeline.PortSpec{Tag: pipeline.TagImage},
		func(ctx *pipeline.Context) (pipeline.Message, error) {
			tex, err := ctx.Pool.Allocate(w, h, gpucore.TextureFormatRGBA8)
			if err != nil {
				return nil, err
			}
			if err := tex.UploadImage(testFrame(w, h)); err != nil {
				return nil, err
			}
			return &pipeline.Image{Texture: tex}, nil
		})

	brighten := pipeline.NewTransform("brighten", func(ctx *pipeline.Context, n *pipeline.Transform) error {
		msg, err := n.Port("in").Read()
		if err != nil {
			return err
		}
		img := msg.(*pipeline.Image)
		if err := prog.SetFloat("gain", gain); err != nil {
			return err
		}
		if err := prog.SetTexture("src", img.Texture); err != nil {
			return err
		}
		out, err := prog.Run()
		if err != nil {
			return err
		}
		ctx.Pool.Free(img.Texture)
		return n.Port("out").Write(&pipeline.Image{Texture: out})
	})
	brighten.AddInput("in", pipeline.PortSpec{Tag: pipeline.TagImage})
	brighten.AddOutput("out", pipeline.PortSpec{Tag: pipeline.TagImage})

	sink := pipeline.NewSink("display", pipeline.PortSpec{Tag: pipeline.TagImage}, nil)

	g := pipeline.NewGraph()
	for _, n := range []pipeline.Node{src, brighten, sink} {
		if err := g.AddNode(n); err != nil {
			return err
		}
	}
	if err := g.Connect(src.Out(), brighten.Port("in")); err != nil {
		return err
	}
	if err := g.Connect(brighten.Port("out"), sink.In()); err != nil {
		return err
	}
	if err := g.Finalize(); err != nil {
		return err
	}
	fmt.Printf("pipeline order: %v\n", g.Order())

	if err := g.Run(eng.Context()); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	result, ok := sink.Export().(*pipeline.Image)
	if !ok {
		return fmt.Errorf("sink exported no image")
	}
	return report(eng, result.Texture, w, h)
}

// report reads the result back and prints a summary.
func report(eng *vision.Engine, tex *texture.Texture, w, h int) error {
	reader := eng.Reader()
	data, rw, rh, err := reader.Read(tex, gpucore.Rect{W: w, H: h})
	if err != nil {
		return fmt.Errorf("readback: %w", err)
	}

	var sum uint64
	for _, b := range data {
		sum += uint64(b)
	}
	fmt.Printf("frame %dx%d, %d bytes, mean byte %.1f\n",
		rw, rh, len(data), float64(sum)/float64(len(data)))

	st := eng.Pool().Stats()
	fmt.Printf("pool: created %d, reused %d, pooled %d\n", st.Created, st.Reused, st.Pooled)

	// Async path: issue a few overlapped reads the way a frame loop would.
	for i := 0; i < readback.DefaultBuffers+1; i++ {
		res, err := reader.ReadAsync(tex, gpucore.Rect{W: w, H: h})
		if err != nil {
			return fmt.Errorf("async readback: %w", err)
		}
		fmt.Printf("async read %d: %d bytes (stale=%v)\n", i, len(res.Data), res.Stale)
		res.Release()
	}
	return nil
}

// testFrame builds a horizontal gradient frame.
func testFrame(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(x * 255 / max(w-1, 1))
			i := img.PixOffset(x, y)
			img.Pix[i+0] = v
			img.Pix[i+1] = v
			img.Pix[i+2] = v
			img.Pix[i+3] = 0xFF
		}
	}
	return img
}
