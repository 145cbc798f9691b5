// Command tinykernel boots a single instance of the simulated kernel:
// it wires up the physical frame pool, swap device, flat filesystem
// and scheduler, writes a tiny hand-built ELF image to "disk", execs
// it as the init process, and runs the scheduler to completion. On
// exit it prints the kernel's own fault/eviction/context-switch
// counters the way a real kernel's shutdown banner would.
//
// It plays the role biscuit/src/kernel/chentry.go and
// biscuit/src/mkfs/mkfs.go play for the teacher: a small, single-
// purpose driver program rather than a library package.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"os"

	"golang.org/x/arch/x86/x86asm"
	"golang.org/x/mod/semver"
	"golang.org/x/sys/cpu"

	"tinykernel/caller"
	"tinykernel/fs"
	"tinykernel/mem"
	"tinykernel/proc"
	"tinykernel/sched"
	"tinykernel/stats"
	"tinykernel/vm"
)

// panicdump recovers a panic reaching the top of the boot goroutine,
// dumps the call stack that triggered it the way a real kernel panic
// prints the faulting chain before halting, and re-panics so the
// process still exits non-zero — spec.md's invariant-violation rule is
// "panic with assertion", not "panic silently".
func panicdump() {
	if r := recover(); r != nil {
		fmt.Printf("tinykernel: panic: %v\n", r)
		caller.Callerdump(2)
		panic(r)
	}
}

func main() {
	defer panicdump()

	mlfqs := flag.Bool("mlfqs", false, "schedule with the 4.4BSD multi-level feedback queue instead of strict priority donation")
	frames := flag.Int("frames", 256, "number of physical frames in the simulated machine")
	swapSlots := flag.Int("swap", 256, "number of swap slots on the simulated swap device")
	version := flag.String("version", "v0.1.0", "kernel build version, must be valid semver")
	flag.Parse()

	if !semver.IsValid(*version) {
		log.Fatalf("tinykernel: %q is not a valid semver build version", *version)
	}

	img, entry, code := buildInitImage()
	bootBanner(*version, *mlfqs, entry, code)

	phys := mem.NewPhysmem(*frames)
	swap := vm.NewSwapDevice(*swapSlots)
	fsys := fs.New()
	sc := sched.New(*mlfqs)
	pt := proc.NewPtable(sc, phys, swap, fsys)

	if err := fsys.Create("init"); err != 0 {
		log.Fatalf("tinykernel: create init image: %d", err)
	}
	f, ferr := fsys.Open("init", false)
	if ferr != 0 {
		log.Fatalf("tinykernel: open init image: %d", ferr)
	}
	if _, werr := f.Write(img, 0); werr != 0 {
		log.Fatalf("tinykernel: write init image: %d", werr)
	}
	f.Close()

	var k stats.Kernel

	pt.Create("init", 31, os.Stdin.Read, os.Stdout.Write, func(p *proc.Process) {
		res, eerr := p.Exec("init", []string{"init"})
		if eerr != 0 {
			fmt.Printf("init: exec failed: %d\n", eerr)
			p.Exit(1)
			return
		}
		k.Execs.Inc()
		fmt.Printf("init: entered at 0x%x, rsp 0x%x, argc %d\n", res.Entry, res.Rsp, res.Argc)
		p.Exit(0)
	})

	for sc.Step() {
		k.ContextSwitches.Inc()
	}

	fmt.Println("tinykernel: shutdown")
	fmt.Print(stats.Stats2String(&k))
}

// bootBanner prints the boot-time log line a kernel would emit before
// scheduling anything: the build version, the scheduling policy, the
// host CPU features the simulation is (nominally) running on, and a
// disassembly of init's first few instructions — the same kind of
// sanity check chentry.go's chkELF performs before trusting an image,
// extended here to actually decode the bytes rather than just the
// header.
func bootBanner(version string, mlfqs bool, entry uint64, code []byte) {
	policy := "priority donation"
	if mlfqs {
		policy = "4.4BSD MLFQS"
	}
	fmt.Printf("tinykernel %s booting (scheduler: %s)\n", version, policy)
	fmt.Printf("host cpu: sse4.2=%v avx2=%v\n", cpu.X86.HasSSE42, cpu.X86.HasAVX2)
	fmt.Printf("init entry 0x%x:\n", entry)
	for off := 0; off < len(code); {
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil {
			fmt.Printf("  0x%x: <bad instruction>\n", entry+uint64(off))
			break
		}
		fmt.Printf("  0x%x: %s\n", entry+uint64(off), inst.String())
		off += inst.Len
	}
}

// buildInitImage hand-assembles a minimal valid ELF64 ET_EXEC x86-64
// binary: one PT_LOAD segment, page-aligned, holding a handful of
// instructions that do nothing but demonstrate that exec loaded
// something real at its entry point. There is no compiler in this
// module to produce a binary from source, so the bytes are laid out
// directly the same way elf_test.go's buildELF does for tests.
func buildInitImage() (img []byte, entry uint64, code []byte) {
	const vaddr = 0x400000
	const pgsize = 4096

	code = []byte{
		0xB8, 0x01, 0x00, 0x00, 0x00, // mov eax, 1
		0x31, 0xFF, // xor edi, edi
		0x0F, 0x05, // syscall
		0xC3, // ret
	}

	ehsize, phentsize := 64, 56
	phoff := uint64(ehsize)
	// file offset of the segment shares vaddr's page offset (0 here);
	// pad the header out to a whole page so offset 0 stays page-aligned.
	dataOff := uint64(pgsize)

	buf := make([]byte, dataOff+uint64(len(code)))

	// e_ident
	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT

	le := binary.LittleEndian
	le.PutUint16(buf[16:], 2)           // e_type = ET_EXEC
	le.PutUint16(buf[18:], 0x3e)        // e_machine = EM_X86_64
	le.PutUint32(buf[20:], 1)           // e_version
	le.PutUint64(buf[24:], vaddr)       // e_entry
	le.PutUint64(buf[32:], phoff)       // e_phoff
	le.PutUint64(buf[40:], 0)           // e_shoff
	le.PutUint32(buf[48:], 0)           // e_flags
	le.PutUint16(buf[52:], uint16(ehsize))
	le.PutUint16(buf[54:], uint16(phentsize))
	le.PutUint16(buf[56:], 1) // e_phnum
	le.PutUint16(buf[58:], 0) // e_shentsize
	le.PutUint16(buf[60:], 0) // e_shnum
	le.PutUint16(buf[62:], 0) // e_shstrndx

	ph := buf[phoff:]
	le.PutUint32(ph[0:], 1)          // p_type = PT_LOAD
	le.PutUint32(ph[4:], (1 << 0))   // p_flags = PF_X
	le.PutUint64(ph[8:], dataOff)    // p_offset
	le.PutUint64(ph[16:], vaddr)     // p_vaddr
	le.PutUint64(ph[24:], vaddr)     // p_paddr
	le.PutUint64(ph[32:], uint64(len(code))) // p_filesz
	le.PutUint64(ph[40:], uint64(len(code))) // p_memsz
	le.PutUint64(ph[48:], pgsize)    // p_align

	copy(buf[dataOff:], code)

	return buf, vaddr, code
}
