package render

import (
	"fmt"
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/nearcast/nearcast/internal/decoder"
)

const bgraVertexShader = `
#version 410 core
layout (location = 0) in vec2 aPos;
layout (location = 1) in vec2 aUV;
out vec2 vUV;
void main() {
	vUV = aUV;
	gl_Position = vec4(aPos, 0.0, 1.0);
}
` + "\x00"

const bgraFragmentShader = `
#version 410 core
in vec2 vUV;
out vec4 fragColor;
uniform sampler2D uTex;
void main() {
	fragColor = texture(uTex, vUV).bgra;
}
` + "\x00"

const yuvFragmentShader = `
#version 410 core
in vec2 vUV;
out vec4 fragColor;
uniform sampler2D uY;
uniform sampler2D uU;
uniform sampler2D uV;
void main() {
	float y = texture(uY, vUV).r * 255.0;
	float u = texture(uU, vUV).r * 255.0;
	float v = texture(uV, vUV).r * 255.0;
	float c = y - 16.0;
	float d = u - 128.0;
	float e = v - 128.0;
	float r = clamp((298.0*c + 409.0*e + 128.0) / 255.0 / 256.0 * 256.0, 0.0, 1.0);
	float g = clamp((298.0*c - 100.0*d - 208.0*e + 128.0) / 255.0 / 256.0 * 256.0, 0.0, 1.0);
	float b = clamp((298.0*c + 516.0*d + 128.0) / 255.0 / 256.0 * 256.0, 0.0, 1.0);
	fragColor = vec4(r, g, b, 1.0);
}
` + "\x00"

type pipeline struct {
	quadVAO uint32
	quadVBO uint32

	bgraProgram uint32
	yuvProgram  uint32

	bgraTex uint32

	yTex, uTex, vTex uint32
	texW, texH       int

	overlayVAO uint32
	overlayVBO uint32
	solidProgram uint32
}

func newPipeline() (*pipeline, error) {
	bgraProg, err := linkProgram(bgraVertexShader, bgraFragmentShader)
	if err != nil {
		return nil, fmt.Errorf("bgra program: %w", err)
	}
	yuvProg, err := linkProgram(bgraVertexShader, yuvFragmentShader)
	if err != nil {
		return nil, fmt.Errorf("yuv program: %w", err)
	}
	solidProg, err := linkProgram(solidVertexShader, solidFragmentShader)
	if err != nil {
		return nil, fmt.Errorf("solid program: %w", err)
	}

	p := &pipeline{bgraProgram: bgraProg, yuvProgram: yuvProg, solidProgram: solidProg}
	p.quadVAO, p.quadVBO = newQuad()
	p.overlayVAO, p.overlayVBO = newDynamicQuad()
	p.bgraTex = newTexture()
	p.yTex, p.uTex, p.vTex = newTexture(), newTexture(), newTexture()

	gl.ClearColor(0, 0, 0, 1)
	return p, nil
}

func (p *pipeline) close() {
	gl.DeleteProgram(p.bgraProgram)
	gl.DeleteProgram(p.yuvProgram)
	gl.DeleteProgram(p.solidProgram)
	gl.DeleteVertexArrays(1, &p.quadVAO)
	gl.DeleteBuffers(1, &p.quadVBO)
	gl.DeleteVertexArrays(1, &p.overlayVAO)
	gl.DeleteBuffers(1, &p.overlayVBO)
	gl.DeleteTextures(1, &p.bgraTex)
	gl.DeleteTextures(1, &p.yTex)
	gl.DeleteTextures(1, &p.uTex)
	gl.DeleteTextures(1, &p.vTex)
}

// draw uploads frame into the pipeline's textures (reusing them when
// dimensions match), sets the letterboxed/pillarboxed viewport, and
// presents the frame followed by the overlay toolbar, if visible.
func (p *pipeline) draw(frame *DecodedFrame, fbW, fbH int, overlay OverlaySnapshot) {
	gl.Clear(gl.COLOR_BUFFER_BIT)

	vx, vy, vw, vh := letterboxViewport(frame.Width, frame.Height, fbW, fbH)
	gl.Viewport(int32(vx), int32(vy), int32(vw), int32(vh))

	switch frame.Format {
	case decoder.FormatBGRA:
		p.drawBGRA(frame)
	case decoder.FormatYUV420:
		p.drawYUV(frame)
	}

	if overlay.Visible {
		gl.Viewport(0, 0, int32(fbW), int32(fbH))
		p.drawOverlay(fbW, fbH)
	}
}

func (p *pipeline) drawBGRA(frame *DecodedFrame) {
	gl.UseProgram(p.bgraProgram)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, p.bgraTex)
	if p.texW != frame.Width || p.texH != frame.Height {
		gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA, int32(frame.Width), int32(frame.Height), 0,
			gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(frame.Payload))
		p.texW, p.texH = frame.Width, frame.Height
	} else {
		gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(frame.Width), int32(frame.Height),
			gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(frame.Payload))
	}
	gl.Uniform1i(gl.GetUniformLocation(p.bgraProgram, gl.Str("uTex\x00")), 0)
	p.drawQuad()
}

func (p *pipeline) drawYUV(frame *DecodedFrame) {
	if len(frame.PlaneStrides) != 3 {
		log.Warn("yuv frame missing plane strides, skipping draw")
		return
	}
	w, h := frame.Width, frame.Height
	cw, ch := w/2, h/2
	ySize := frame.PlaneStrides[0] * h
	cSize := frame.PlaneStrides[1] * ch
	if ySize+2*cSize > len(frame.Payload) {
		log.Warn("yuv frame payload too short, skipping draw")
		return
	}
	yPlane := frame.Payload[:ySize]
	uPlane := frame.Payload[ySize : ySize+cSize]
	vPlane := frame.Payload[ySize+cSize : ySize+2*cSize]

	gl.UseProgram(p.yuvProgram)
	uploadPlane(p.yTex, 0, yPlane, w, h)
	uploadPlane(p.uTex, 1, uPlane, cw, ch)
	uploadPlane(p.vTex, 2, vPlane, cw, ch)

	gl.Uniform1i(gl.GetUniformLocation(p.yuvProgram, gl.Str("uY\x00")), 0)
	gl.Uniform1i(gl.GetUniformLocation(p.yuvProgram, gl.Str("uU\x00")), 1)
	gl.Uniform1i(gl.GetUniformLocation(p.yuvProgram, gl.Str("uV\x00")), 2)
	p.drawQuad()
}

func uploadPlane(tex uint32, unit int32, plane []byte, w, h int) {
	gl.ActiveTexture(gl.TEXTURE0 + uint32(unit))
	gl.BindTexture(gl.TEXTURE_2D, tex)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RED, int32(w), int32(h), 0, gl.RED, gl.UNSIGNED_BYTE, gl.Ptr(plane))
}

func (p *pipeline) drawQuad() {
	gl.BindVertexArray(p.quadVAO)
	gl.DrawArrays(gl.TRIANGLE_STRIP, 0, 4)
}

// drawOverlay renders the toolbar as two highlighted rectangles in the
// top-left corner; it marks selector affordance, not glyph text, which
// would need a font atlas this pipeline does not carry.
func (p *pipeline) drawOverlay(fbW, fbH int) {
	gl.UseProgram(p.solidProgram)
	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
	defer gl.Disable(gl.BLEND)

	for row := 0; row < 2; row++ {
		x0 := overlayMarginPx
		y0 := overlayMarginPx + row*(overlayButtonHeightPx+overlayButtonGapPx)
		drawRectNDC(p.overlayVAO, p.overlayVBO, x0, y0, overlayButtonWidthPx, overlayButtonHeightPx, fbW, fbH)
	}
}

// letterboxViewport centres a frameW x frameH image inside an fbW x fbH
// framebuffer, preserving aspect ratio (§4.5 viewport policy).
func letterboxViewport(frameW, frameH, fbW, fbH int) (x, y, w, h int) {
	if frameW <= 0 || frameH <= 0 || fbW <= 0 || fbH <= 0 {
		return 0, 0, fbW, fbH
	}
	frameAspect := float64(frameW) / float64(frameH)
	fbAspect := float64(fbW) / float64(fbH)

	if frameAspect > fbAspect {
		// frame wider than surface: letterbox (bars top/bottom)
		w = fbW
		h = int(float64(fbW) / frameAspect)
		x = 0
		y = (fbH - h) / 2
	} else {
		// frame taller/narrower: pillarbox (bars left/right)
		h = fbH
		w = int(float64(fbH) * frameAspect)
		y = 0
		x = (fbW - w) / 2
	}
	return x, y, w, h
}

func linkProgram(vsSrc, fsSrc string) (uint32, error) {
	vs, err := compileShader(vsSrc, gl.VERTEX_SHADER)
	if err != nil {
		return 0, err
	}
	fs, err := compileShader(fsSrc, gl.FRAGMENT_SHADER)
	if err != nil {
		return 0, err
	}
	prog := gl.CreateProgram()
	gl.AttachShader(prog, vs)
	gl.AttachShader(prog, fs)
	gl.LinkProgram(prog)

	var status int32
	gl.GetProgramiv(prog, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetProgramiv(prog, gl.INFO_LOG_LENGTH, &logLen)
		msg := strings.Repeat("\x00", int(logLen+1))
		gl.GetProgramInfoLog(prog, logLen, nil, gl.Str(msg))
		return 0, fmt.Errorf("link program: %s", msg)
	}
	gl.DeleteShader(vs)
	gl.DeleteShader(fs)
	return prog, nil
}

func compileShader(src string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csrc, free := gl.Strs(src)
	gl.ShaderSource(shader, 1, csrc, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLen)
		msg := strings.Repeat("\x00", int(logLen+1))
		gl.GetShaderInfoLog(shader, logLen, nil, gl.Str(msg))
		return 0, fmt.Errorf("compile shader: %s", msg)
	}
	return shader, nil
}

func newTexture() uint32 {
	var tex uint32
	gl.GenTextures(1, &tex)
	gl.BindTexture(gl.TEXTURE_2D, tex)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	return tex
}

// newQuad builds a full-viewport triangle strip with interleaved
// position/uv, flipped vertically so the first captured row lands at
// the top of the window.
func newQuad() (vao, vbo uint32) {
	vertices := []float32{
		// x, y, u, v
		-1, 1, 0, 0,
		-1, -1, 0, 1,
		1, 1, 1, 0,
		1, -1, 1, 1,
	}
	gl.GenVertexArrays(1, &vao)
	gl.GenBuffers(1, &vbo)
	gl.BindVertexArray(vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(vertices)*4, gl.Ptr(vertices), gl.STATIC_DRAW)
	gl.VertexAttribPointer(0, 2, gl.FLOAT, false, 4*4, gl.PtrOffset(0))
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(1, 2, gl.FLOAT, false, 4*4, gl.PtrOffset(2*4))
	gl.EnableVertexAttribArray(1)
	return vao, vbo
}

func newDynamicQuad() (vao, vbo uint32) {
	gl.GenVertexArrays(1, &vao)
	gl.GenBuffers(1, &vbo)
	gl.BindVertexArray(vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, vbo)
	gl.BufferData(gl.ARRAY_BUFFER, 4*2*4, nil, gl.DYNAMIC_DRAW)
	gl.VertexAttribPointer(0, 2, gl.FLOAT, false, 2*4, gl.PtrOffset(0))
	gl.EnableVertexAttribArray(0)
	return vao, vbo
}

const solidVertexShader = `
#version 410 core
layout (location = 0) in vec2 aPos;
void main() {
	gl_Position = vec4(aPos, 0.0, 1.0);
}
` + "\x00"

const solidFragmentShader = `
#version 410 core
out vec4 fragColor;
void main() {
	fragColor = vec4(0.05, 0.05, 0.05, 0.75);
}
` + "\x00"

func drawRectNDC(vao, vbo uint32, x, y, w, h, fbW, fbH int) {
	toNDC := func(px, py int) (float32, float32) {
		return float32(px)/float32(fbW)*2 - 1, 1 - float32(py)/float32(fbH)*2
	}
	x0, y0 := toNDC(x, y)
	x1, y1 := toNDC(x+w, y+h)
	vertices := []float32{
		x0, y0,
		x0, y1,
		x1, y0,
		x1, y1,
	}
	gl.BindVertexArray(vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, vbo)
	gl.BufferSubData(gl.ARRAY_BUFFER, 0, len(vertices)*4, gl.Ptr(vertices))
	gl.DrawArrays(gl.TRIANGLE_STRIP, 0, 4)
}
