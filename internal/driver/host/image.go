package host

import (
	"encoding/binary"
	"math"

	"github.com/x448/float16"

	"github.com/cwbudde/clhost/internal/driver"
)

// ImageView gives kernels pixel access to a 2D image. Reads clamp
// coordinates to the edge; writes outside the image are dropped.
type ImageView struct {
	info *imageInfo
	data []byte
}

func (v *ImageView) Width() int  { return v.info.width }
func (v *ImageView) Height() int { return v.info.height }

// slots maps each stored channel to its position in an (r, g, b, a) pixel.
func slots(order driver.ChannelOrder) []int {
	switch order {
	case driver.ChannelR, driver.ChannelIntensity, driver.ChannelLuminance:
		return []int{0}
	case driver.ChannelA:
		return []int{3}
	case driver.ChannelRG:
		return []int{0, 1}
	case driver.ChannelRA:
		return []int{0, 3}
	case driver.ChannelRGB:
		return []int{0, 1, 2}
	case driver.ChannelBGRA:
		return []int{2, 1, 0, 3}
	case driver.ChannelARGB:
		return []int{3, 0, 1, 2}
	}
	return []int{0, 1, 2, 3}
}

func (v *ImageView) offset(x, y int) int {
	x = min(max(x, 0), v.info.width-1)
	y = min(max(y, 0), v.info.height-1)
	return y*v.info.rowPitch + x*v.info.elem
}

func (v *ImageView) channel(off int) (float32, uint32) {
	b := v.data[off:]
	switch v.info.format.Type {
	case driver.UNormInt8:
		return float32(b[0]) / 255, uint32(b[0])
	case driver.UnsignedInt8:
		return float32(b[0]), uint32(b[0])
	case driver.SNormInt8:
		return max(float32(int8(b[0]))/127, -1), uint32(int8(b[0]))
	case driver.SignedInt8:
		return float32(int8(b[0])), uint32(int8(b[0]))
	case driver.UNormInt16:
		u := binary.LittleEndian.Uint16(b)
		return float32(u) / 65535, uint32(u)
	case driver.UnsignedInt16:
		u := binary.LittleEndian.Uint16(b)
		return float32(u), uint32(u)
	case driver.SNormInt16:
		s := int16(binary.LittleEndian.Uint16(b))
		return max(float32(s)/32767, -1), uint32(s)
	case driver.SignedInt16:
		s := int16(binary.LittleEndian.Uint16(b))
		return float32(s), uint32(s)
	case driver.HalfFloat:
		f := float16.Frombits(binary.LittleEndian.Uint16(b)).Float32()
		return f, uint32(f)
	case driver.SignedInt32:
		u := binary.LittleEndian.Uint32(b)
		return float32(int32(u)), u
	case driver.UnsignedInt32:
		u := binary.LittleEndian.Uint32(b)
		return float32(u), u
	case driver.Float:
		f := math.Float32frombits(binary.LittleEndian.Uint32(b))
		return f, uint32(f)
	}
	return 0, 0
}

func (v *ImageView) read(x, y int) ([4]float32, [4]uint32) {
	f := [4]float32{0, 0, 0, 1}
	u := [4]uint32{0, 0, 0, 1}
	off := v.offset(x, y)
	size := v.info.format.Type.Size()
	for i, slot := range slots(v.info.format.Order) {
		f[slot], u[slot] = v.channel(off + i*size)
	}
	switch v.info.format.Order {
	case driver.ChannelIntensity:
		f = [4]float32{f[0], f[0], f[0], f[0]}
		u = [4]uint32{u[0], u[0], u[0], u[0]}
	case driver.ChannelLuminance:
		f = [4]float32{f[0], f[0], f[0], 1}
		u = [4]uint32{u[0], u[0], u[0], 1}
	}
	return f, u
}

// ReadFloat returns the pixel at (x, y), normalizing integer formats.
func (v *ImageView) ReadFloat(x, y int) [4]float32 {
	f, _ := v.read(x, y)
	return f
}

// ReadUint returns the raw integer channels of the pixel at (x, y).
func (v *ImageView) ReadUint(x, y int) [4]uint32 {
	_, u := v.read(x, y)
	return u
}

func clamp01(f float32, lo float32) float32 { return min(max(f, lo), 1) }

// WriteFloat stores a pixel given as normalized or floating point channels.
func (v *ImageView) WriteFloat(x, y int, px [4]float32) {
	if x < 0 || y < 0 || x >= v.info.width || y >= v.info.height {
		return
	}
	off := y*v.info.rowPitch + x*v.info.elem
	size := v.info.format.Type.Size()
	for i, slot := range slots(v.info.format.Order) {
		b := v.data[off+i*size:]
		f := px[slot]
		switch v.info.format.Type {
		case driver.UNormInt8:
			b[0] = uint8(math.Round(float64(clamp01(f, 0) * 255)))
		case driver.SNormInt8:
			b[0] = uint8(int8(math.Round(float64(clamp01(f, -1) * 127))))
		case driver.UnsignedInt8, driver.SignedInt8:
			b[0] = uint8(int32(f))
		case driver.UNormInt16:
			binary.LittleEndian.PutUint16(b, uint16(math.Round(float64(clamp01(f, 0)*65535))))
		case driver.SNormInt16:
			binary.LittleEndian.PutUint16(b, uint16(int16(math.Round(float64(clamp01(f, -1)*32767)))))
		case driver.UnsignedInt16, driver.SignedInt16:
			binary.LittleEndian.PutUint16(b, uint16(int32(f)))
		case driver.HalfFloat:
			binary.LittleEndian.PutUint16(b, float16.Fromfloat32(f).Bits())
		case driver.SignedInt32, driver.UnsignedInt32:
			binary.LittleEndian.PutUint32(b, uint32(int64(f)))
		case driver.Float:
			binary.LittleEndian.PutUint32(b, math.Float32bits(f))
		}
	}
}

// WriteUint stores a pixel given as raw integer channels.
func (v *ImageView) WriteUint(x, y int, px [4]uint32) {
	if x < 0 || y < 0 || x >= v.info.width || y >= v.info.height {
		return
	}
	off := y*v.info.rowPitch + x*v.info.elem
	size := v.info.format.Type.Size()
	for i, slot := range slots(v.info.format.Order) {
		b := v.data[off+i*size:]
		switch size {
		case 1:
			b[0] = uint8(px[slot])
		case 2:
			binary.LittleEndian.PutUint16(b, uint16(px[slot]))
		case 4:
			binary.LittleEndian.PutUint32(b, px[slot])
		}
	}
}
