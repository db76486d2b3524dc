package memory

// MBC is the memory bank controller contract the MMU delegates ROM/external
// RAM accesses to. Every cartridge, including one with no banking hardware,
// is represented by one of these.
type MBC interface {
	Read(address uint16) byte
	Write(address uint16, value byte)
	// SaveRAM returns the MBC's external RAM, empty or nil if it has none;
	// the MMU decides from the cartridge's battery flag whether to persist it.
	SaveRAM() []byte
	// LoadRAM restores previously-saved external RAM. A length mismatch
	// with the MBC's actual RAM is ignored rather than treated as fatal.
	LoadRAM(data []byte)
}

// NoMBC is a plain 32KB ROM with no banking and no external RAM.
type NoMBC struct {
	rom []byte
}

func NewNoMBC(rom []byte) *NoMBC { return &NoMBC{rom: rom} }

func (m *NoMBC) Read(address uint16) byte {
	if int(address) < len(m.rom) {
		return m.rom[address]
	}
	return 0xFF
}
func (m *NoMBC) Write(address uint16, value byte) {}
func (m *NoMBC) SaveRAM() []byte                  { return nil }
func (m *NoMBC) LoadRAM(data []byte)              {}

// MBC1 supports up to 125 switchable 16KB ROM banks and up to four 8KB RAM
// banks, with the classic ROM/RAM banking-mode quirk: in RAM mode, bits 5-6
// of the ROM bank number select the RAM bank instead of the upper ROM bits.
type MBC1 struct {
	rom []byte
	ram []byte

	ramEnabled  bool
	romBankLow  byte // bits 0-4 of the selected ROM bank
	bankUpper   byte // bits 5-6, meaning depends on bankingMode
	bankingMode byte // 0 = ROM banking mode, 1 = RAM banking mode
}

func NewMBC1(rom []byte, ramBanks int) *MBC1 {
	return &MBC1{rom: rom, ram: make([]byte, ramBanks*0x2000)}
}

func (m *MBC1) romBank() int {
	bank := int(m.romBankLow)
	if bank == 0 {
		bank = 1
	}
	if m.bankingMode == 0 {
		bank |= int(m.bankUpper) << 5
	}
	return bank
}

func (m *MBC1) ramBank() int {
	if m.bankingMode == 1 {
		return int(m.bankUpper)
	}
	return 0
}

func (m *MBC1) Read(address uint16) byte {
	switch {
	case address <= 0x3FFF:
		return m.rom[address]
	case address <= 0x7FFF:
		offset := m.romBank()*0x4000 + int(address-0x4000)
		return m.rom[offset%len(m.rom)]
	case address >= 0xA000 && address <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return 0xFF
		}
		offset := m.ramBank()*0x2000 + int(address-0xA000)
		return m.ram[offset%len(m.ram)]
	default:
		return 0xFF
	}
}

func (m *MBC1) Write(address uint16, value byte) {
	switch {
	case address <= 0x1FFF:
		m.ramEnabled = value&0x0F == 0x0A
	case address <= 0x3FFF:
		m.romBankLow = value & 0x1F
	case address <= 0x5FFF:
		m.bankUpper = value & 0x03
	case address <= 0x7FFF:
		m.bankingMode = value & 0x01
	case address >= 0xA000 && address <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return
		}
		offset := m.ramBank()*0x2000 + int(address-0xA000)
		m.ram[offset%len(m.ram)] = value
	}
}

func (m *MBC1) SaveRAM() []byte { return m.ram }
func (m *MBC1) LoadRAM(data []byte) {
	if len(data) == len(m.ram) {
		copy(m.ram, data)
	}
}

// MBC2 has 16 switchable ROM banks and a built-in 512x4-bit RAM: only the
// low nibble of each byte is meaningful, and the bit 8 of the address
// written to 0x0000-0x3FFF selects RAM-enable vs ROM-bank-number semantics.
type MBC2 struct {
	rom []byte
	ram [512]byte // low nibble only

	ramEnabled bool
	romBank    byte
}

func NewMBC2(rom []byte) *MBC2 { return &MBC2{rom: rom, romBank: 1} }

func (m *MBC2) Read(address uint16) byte {
	switch {
	case address <= 0x3FFF:
		return m.rom[address]
	case address <= 0x7FFF:
		offset := int(m.romBank)*0x4000 + int(address-0x4000)
		return m.rom[offset%len(m.rom)]
	case address >= 0xA000 && address <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		return m.ram[(address-0xA000)%512] | 0xF0
	default:
		return 0xFF
	}
}

func (m *MBC2) Write(address uint16, value byte) {
	switch {
	case address <= 0x3FFF:
		if address&0x0100 == 0 {
			m.ramEnabled = value&0x0F == 0x0A
		} else {
			bank := value & 0x0F
			if bank == 0 {
				bank = 1
			}
			m.romBank = bank
		}
	case address >= 0xA000 && address <= 0xBFFF:
		if m.ramEnabled {
			m.ram[(address-0xA000)%512] = value & 0x0F
		}
	}
}

func (m *MBC2) SaveRAM() []byte { return m.ram[:] }
func (m *MBC2) LoadRAM(data []byte) {
	if len(data) == len(m.ram) {
		copy(m.ram[:], data)
	}
}

// MBC3 supports up to 128 ROM banks, four RAM banks, and a real-time-clock
// register set latched via a 0x00->0x01 write sequence to 0x6000-0x7FFF.
// RTC tick advancement is out of scope (spec non-goal); registers hold
// whatever was last latched/written.
type MBC3 struct {
	rom []byte
	ram []byte
	rtc [5]byte

	ramEnabled  bool
	romBank     byte
	ramOrRTCSel byte // 0-3 selects a RAM bank, 0x08-0x0C selects an RTC register
	latchState  byte
}

func NewMBC3(rom []byte, ramBanks int) *MBC3 {
	return &MBC3{rom: rom, ram: make([]byte, ramBanks*0x2000), romBank: 1}
}

func (m *MBC3) Read(address uint16) byte {
	switch {
	case address <= 0x3FFF:
		return m.rom[address]
	case address <= 0x7FFF:
		offset := int(m.romBank)*0x4000 + int(address-0x4000)
		return m.rom[offset%len(m.rom)]
	case address >= 0xA000 && address <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		if m.ramOrRTCSel <= 0x03 {
			if len(m.ram) == 0 {
				return 0xFF
			}
			offset := int(m.ramOrRTCSel)*0x2000 + int(address-0xA000)
			return m.ram[offset%len(m.ram)]
		}
		if m.ramOrRTCSel >= 0x08 && m.ramOrRTCSel <= 0x0C {
			return m.rtc[m.ramOrRTCSel-0x08]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC3) Write(address uint16, value byte) {
	switch {
	case address <= 0x1FFF:
		m.ramEnabled = value&0x0F == 0x0A
	case address <= 0x3FFF:
		bank := value & 0x7F
		if bank == 0 {
			bank = 1
		}
		m.romBank = bank
	case address <= 0x5FFF:
		m.ramOrRTCSel = value
	case address <= 0x7FFF:
		if m.latchState == 0x00 && value == 0x01 {
			// latch clock data into the rtc register snapshot (no-op: values
			// already live there since we don't advance real time)
		}
		m.latchState = value
	case address >= 0xA000 && address <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		if m.ramOrRTCSel <= 0x03 {
			if len(m.ram) == 0 {
				return
			}
			offset := int(m.ramOrRTCSel)*0x2000 + int(address-0xA000)
			m.ram[offset%len(m.ram)] = value
		} else if m.ramOrRTCSel >= 0x08 && m.ramOrRTCSel <= 0x0C {
			m.rtc[m.ramOrRTCSel-0x08] = value
		}
	}
}

func (m *MBC3) SaveRAM() []byte { return m.ram }
func (m *MBC3) LoadRAM(data []byte) {
	if len(data) == len(m.ram) {
		copy(m.ram, data)
	}
}
