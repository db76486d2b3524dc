package video

import "github.com/example/gbcore/gbcore/addr"

// renderScanline draws the current LY into the frame buffer: background,
// then window, then sprites, matching the DMG's layer composition order.
func (p *PPU) renderScanline() {
	if p.lcdc&(1<<lcdcEnable) == 0 {
		return
	}

	y := int(p.ly)
	if y >= Height {
		return
	}

	p.renderBackground(y)
	p.renderWindow(y)
	p.renderSprites(y)
}

func (p *PPU) renderBackground(y int) {
	if p.lcdc&(1<<lcdcBGEnable) == 0 {
		color0 := p.bgp & 0x03
		for x := 0; x < Width; x++ {
			p.frame.set(x, y, color0)
			p.bgColorIdx[x] = 0
		}
		return
	}

	tileMapBase := uint16(addr.TileMap0)
	if p.lcdc&(1<<lcdcBGMap) != 0 {
		tileMapBase = addr.TileMap1
	}

	scrolledY := (y + int(p.scy)) & 0xFF
	tileRow := scrolledY / 8
	pixelY := scrolledY % 8

	for x := 0; x < Width; x++ {
		scrolledX := (x + int(p.scx)) & 0xFF
		tileCol := scrolledX / 8
		pixelX := scrolledX % 8

		tileIndex := p.vram[tileMapBase-0x8000+uint16(tileRow*32+tileCol)]
		low, high := p.tileRowBytes(tileIndex, pixelY)

		colorIdx := pixelFromPlanes(low, high, 7-pixelX)
		p.bgColorIdx[x] = colorIdx
		p.frame.set(x, y, applyPalette(p.bgp, colorIdx))
	}
}

func (p *PPU) renderWindow(y int) {
	if p.lcdc&(1<<lcdcWindowEnable) == 0 {
		return
	}
	if y < int(p.wy) {
		return
	}
	wx := int(p.wx) - 7
	if wx >= Width {
		return
	}

	tileMapBase := uint16(addr.TileMap0)
	if p.lcdc&(1<<lcdcWindowMap) != 0 {
		tileMapBase = addr.TileMap1
	}

	tileRow := p.windowLine / 8
	pixelY := p.windowLine % 8

	drewAnyColumn := false
	for x := 0; x < Width; x++ {
		bufX := wx + x
		if bufX < 0 || bufX >= Width {
			continue
		}
		drewAnyColumn = true

		tileCol := x / 8
		pixelX := x % 8

		tileIndex := p.vram[tileMapBase-0x8000+uint16(tileRow*32+tileCol)]
		low, high := p.tileRowBytes(tileIndex, pixelY)

		colorIdx := pixelFromPlanes(low, high, 7-pixelX)
		p.bgColorIdx[bufX] = colorIdx
		p.frame.set(bufX, y, applyPalette(p.bgp, colorIdx))
	}
	if drewAnyColumn {
		p.windowLine++
	}
}

// tileRowBytes fetches the two bit-plane bytes for one row of a tile,
// resolving the signed/unsigned addressing mode from LCDC bit 4.
func (p *PPU) tileRowBytes(tileIndex byte, rowInTile int) (low, high byte) {
	var base uint16
	if p.lcdc&(1<<lcdcTileData) != 0 {
		base = addr.TileData0 + uint16(tileIndex)*16
	} else {
		base = uint16(int(addr.TileData2) + int(int8(tileIndex))*16)
	}
	offset := base - 0x8000 + uint16(rowInTile*2)
	return p.vram[offset], p.vram[offset+1]
}

func pixelFromPlanes(low, high byte, bitIdx int) byte {
	var v byte
	if low&(1<<uint(bitIdx)) != 0 {
		v |= 1
	}
	if high&(1<<uint(bitIdx)) != 0 {
		v |= 2
	}
	return v
}

func applyPalette(palette, colorIdx byte) byte {
	return (palette >> (colorIdx * 2)) & 0x03
}

type spriteAttr struct {
	oamIndex int
	y, x     int
	tile     byte
	flags    byte
}

// renderSprites implements the OAM-scan selection rule (up to 10 sprites per
// line, in OAM-scan order) and the X-priority rule (lower X wins; OAM order
// breaks ties), drawing back-to-front so the highest-priority sprite ends up
// on top.
func (p *PPU) renderSprites(y int) {
	if p.lcdc&(1<<lcdcObjEnable) == 0 {
		return
	}

	height := 8
	if p.lcdc&(1<<lcdcObjSize) != 0 {
		height = 16
	}

	var selected []spriteAttr
	for i := 0; i < 40 && len(selected) < 10; i++ {
		base := i * 4
		spriteY := int(p.oam[base]) - 16
		if y < spriteY || y >= spriteY+height {
			continue
		}
		selected = append(selected, spriteAttr{
			oamIndex: i,
			y:        spriteY,
			x:        int(p.oam[base+1]) - 8,
			tile:     p.oam[base+2],
			flags:    p.oam[base+3],
		})
	}

	// Stable sort by X ascending; Go's sort.SliceStable would do this, but a
	// manual insertion sort over at most 10 elements keeps this package
	// free of an extra import for one tiny sort.
	for i := 1; i < len(selected); i++ {
		for j := i; j > 0 && selected[j].x < selected[j-1].x; j-- {
			selected[j], selected[j-1] = selected[j-1], selected[j]
		}
	}

	for i := len(selected) - 1; i >= 0; i-- {
		p.drawSprite(selected[i], y, height)
	}
}

func (p *PPU) drawSprite(s spriteAttr, y, height int) {
	flipX := s.flags&0x20 != 0
	flipY := s.flags&0x40 != 0
	behindBG := s.flags&0x80 != 0
	palette := p.obp0
	if s.flags&0x10 != 0 {
		palette = p.obp1
	}

	rowInSprite := y - s.y
	if flipY {
		rowInSprite = height - 1 - rowInSprite
	}

	tile := s.tile
	if height == 16 {
		tile &^= 0x01
	}
	tileOffset := 0
	if rowInSprite >= 8 {
		tileOffset = 1
		rowInSprite -= 8
	}

	base := addr.TileData0 + uint16(tile)*16 + uint16(tileOffset)*16
	offset := base - 0x8000 + uint16(rowInSprite*2)
	low, high := p.vram[offset], p.vram[offset+1]

	for px := 0; px < 8; px++ {
		bufX := s.x + px
		if bufX < 0 || bufX >= Width {
			continue
		}
		bitIdx := 7 - px
		if flipX {
			bitIdx = px
		}
		colorIdx := pixelFromPlanes(low, high, bitIdx)
		if colorIdx == 0 {
			continue // transparent
		}
		if behindBG && p.bgColorIdx[bufX] != 0 {
			continue
		}
		p.frame.set(bufX, y, applyPalette(palette, colorIdx))
	}
}
