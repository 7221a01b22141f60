package host

// A minimal guest module assembled by hand. In WAT:
//
//	(module
//	  (import "grist_host" "call" (func $call (param i64) (result i64)))
//	  (import "grist_host" "getOption" (func $getOption (param i64) (result i64)))
//	  (import "grist_host" "log_message" (func $log (param i64)))
//	  (memory (export "memory") 1)
//	  (global $next (mut i32) (i32.const 1024))
//	  (func (export "allocate") (param $size i32) (result i32)
//	    global.get $next
//	    (global.set $next (i32.add (global.get $next) (local.get $size))))
//	  (func (export "forward") (param i32 i32) (result i64)
//	    (call $call (pack 0 1)))
//	  (func (export "forward_option") (param i32 i32) (result i64)
//	    (call $getOption (pack 0 1)))
//	  (func (export "log") (param i32 i32) (result i64)
//	    (call $log (pack 0 1)) (i64.const 0))
//	  (func (export "deliver_event") (param i32 i32) (result i64)
//	    (i32.store (i32.const 0) (i32.add (i32.load (i32.const 0)) (i32.const 1)))
//	    (i64.store (i32.const 8) (pack 0 1))
//	    (pack 0 1)))
//
// where (pack 0 1) is (i64.or (i64.shl (i64.extend_i32_u ptr) 32) (i64.extend_i32_u len)).
// deliver_event counts deliveries at address 0 and keeps the last event at address 8.

const (
	wasmI32 = 0x7f
	wasmI64 = 0x7e

	opCall        = 0x10
	opLocalGet    = 0x20
	opGlobalGet   = 0x23
	opGlobalSet   = 0x24
	opI32Load     = 0x28
	opI32Store    = 0x36
	opI64Store    = 0x37
	opI32Const    = 0x41
	opI64Const    = 0x42
	opI32Add      = 0x6a
	opI64Or       = 0x84
	opI64Shl      = 0x86
	opI64ExtendU  = 0xad
	opEnd         = 0x0b
	exportFunc    = 0x00
	exportMemory  = 0x02
	importFunc    = 0x00
	funcTypeMagic = 0x60
)

// Guest addresses written by deliver_event.
const (
	guestDeliveries = 0
	guestLastEvent  = 8
)

func testGuest() []byte {
	pack := cat(
		[]byte{opLocalGet, 0, opI64ExtendU, opI64Const}, sleb(32), []byte{opI64Shl},
		[]byte{opLocalGet, 1, opI64ExtendU, opI64Or},
	)

	types := wasmSection(1,
		funcType([]byte{wasmI64}, []byte{wasmI64}),
		funcType([]byte{wasmI64}, nil),
		funcType([]byte{wasmI32}, []byte{wasmI32}),
		funcType([]byte{wasmI32, wasmI32}, []byte{wasmI64}),
	)
	imports := wasmSection(2,
		cat(wasmName("grist_host"), wasmName("call"), []byte{importFunc}, uleb(0)),
		cat(wasmName("grist_host"), wasmName("getOption"), []byte{importFunc}, uleb(0)),
		cat(wasmName("grist_host"), wasmName(LogExport), []byte{importFunc}, uleb(1)),
	)
	funcs := wasmSection(3, uleb(2), uleb(3), uleb(3), uleb(3), uleb(3))
	memory := wasmSection(5, []byte{0x00, 0x01})
	globals := wasmSection(6, cat([]byte{wasmI32, 0x01, opI32Const}, sleb(1024), []byte{opEnd}))
	exports := wasmSection(7,
		cat(wasmName("memory"), []byte{exportMemory}, uleb(0)),
		cat(wasmName(ExportAllocate), []byte{exportFunc}, uleb(3)),
		cat(wasmName("forward"), []byte{exportFunc}, uleb(4)),
		cat(wasmName("forward_option"), []byte{exportFunc}, uleb(5)),
		cat(wasmName("log"), []byte{exportFunc}, uleb(6)),
		cat(wasmName(ExportDeliverEvent), []byte{exportFunc}, uleb(7)),
	)
	code := wasmSection(10,
		funcBody([]byte{opGlobalGet, 0, opGlobalGet, 0, opLocalGet, 0, opI32Add, opGlobalSet, 0}),
		funcBody(pack, []byte{opCall}, uleb(0)),
		funcBody(pack, []byte{opCall}, uleb(1)),
		funcBody(pack, []byte{opCall}, uleb(2), []byte{opI64Const}, sleb(0)),
		funcBody(
			[]byte{opI32Const, guestDeliveries, opI32Const, guestDeliveries, opI32Load, 2, 0},
			[]byte{opI32Const, 1, opI32Add, opI32Store, 2, 0},
			[]byte{opI32Const, guestLastEvent}, pack, []byte{opI64Store, 3, 0},
			pack,
		),
	)

	return cat(emptyModule, types, imports, funcs, memory, globals, exports, code)
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func uleb(n int) []byte {
	var out []byte
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func sleb(n int64) []byte {
	var out []byte
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if (n == 0 && b&0x40 == 0) || (n == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func wasmName(s string) []byte {
	return cat(uleb(len(s)), []byte(s))
}

func wasmSection(id byte, items ...[]byte) []byte {
	content := cat(uleb(len(items)), cat(items...))
	return cat([]byte{id}, uleb(len(content)), content)
}

func funcType(params, results []byte) []byte {
	return cat([]byte{funcTypeMagic}, uleb(len(params)), params, uleb(len(results)), results)
}

// funcBody encodes a function without locals.
func funcBody(instrs ...[]byte) []byte {
	body := cat([]byte{0x00}, cat(instrs...), []byte{opEnd})
	return cat(uleb(len(body)), body)
}
