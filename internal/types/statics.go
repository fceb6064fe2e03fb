package types

import (
	"github.com/DataExMachina-dev/checkpoint-go/internal/framing"
	"github.com/DataExMachina-dev/checkpoint-go/internal/threads"
	"github.com/DataExMachina-dev/checkpoint-go/internal/writer"
)

var (
	FlagValueOrigin = NewEnum(
		"Default",
		"Command line",
		"Environment variable",
		"Config file",
		"Management",
		"Ergonomic",
		"Attach on demand",
		"Internal",
	)

	MonitorInflateCause = NewEnum(
		"VM Internal",
		"Monitor Enter",
		"Monitor Wait",
		"Monitor Notify",
		"Monitor Hash Code",
		"JNI Monitor Enter",
		"JNI Monitor Exit",
	)

	GCCause = NewEnum(
		"System.gc()",
		"FullGCAlot",
		"ScavengeAlot",
		"Allocation Profiler",
		"JvmtiEnv ForceGarbageCollection",
		"GCLocker Initiated GC",
		"Heap Inspection Initiated GC",
		"Heap Dump Initiated GC",
		"WhiteBox Initiated Young GC",
		"WhiteBox Initiated Concurrent Mark",
		"WhiteBox Initiated Full GC",
		"Update Allocation Context Stats",
		"Update Allocation Context Stats",
		"No GC",
		"Allocation Failure",
		"Tenured Generation Full",
		"Metadata GC Threshold",
		"CMS Generation Full",
		"CMS Initial Mark",
		"CMS Final Remark",
		"CMS Concurrent Mark",
		"Old Generation Expanded On Last Scavenge",
		"Old Generation Too Full To Scavenge",
		"Ergonomics",
		"G1 Evacuation Pause",
		"G1 Humongous Allocation",
		"Last ditch collection",
	)

	GCName = NewEnum(
		"ParallelOld",
		"SerialOld",
		"PSMarkSweep",
		"ParallelScavenge",
		"DefNew",
		"ParNew",
		"G1New",
		"ConcurrentMarkSweep",
		"G1Old",
	)

	GCWhen = NewEnum(
		"Before GC",
		"After GC",
	)

	G1HeapRegionType = NewEnum(
		"Free",
		"Eden",
		"Survivor",
		"Starts Humongous",
		"Continues Humongous",
		"Old",
	)

	GCThresholdUpdater = NewEnum(
		"compute_new_size",
		"expand_and_allocate",
	)

	MetadataType = NewEnum(
		"Class",
		"Metadata",
	)

	MetaspaceObjectType = NewEnum(
		"Class",
		"Symbol",
		"TypeArrayU1",
		"TypeArrayU2",
		"TypeArrayU4",
		"TypeArrayU8",
		"TypeArrayOther",
		"Method",
		"ConstMethod",
		"MethodData",
		"ConstantPool",
		"ConstantPoolCache",
		"Annotation",
		"MethodCounters",
	)

	G1YCType = NewEnum(
		"Normal",
		"Initial Mark",
		"During Mark",
		"Mixed",
	)

	ReferenceType = NewEnum(
		"None reference",
		"Other reference",
		"Soft reference",
		"Weak reference",
		"Final reference",
		"Phantom reference",
	)

	NarrowOopMode = NewEnum(
		"32-bits Oops",
		"zero based Compressed Oops",
		"Compressed Oops with base",
	)

	CompilerPhaseType = NewEnum(
		"Before StringOpts",
		"After StringOpts",
		"Before RemoveUseless",
		"After Parsing",
		"Iter GVN 1",
		"PhaseIdealLoop before EA",
		"Iter GVN after EA",
		"Iter GVN after eliminating allocations and locks",
		"PhaseIdealLoop 1",
		"PhaseIdealLoop 2",
		"PhaseIdealLoop 3",
		"PhaseCPP 1",
		"Iter GVN 2",
		"PhaseIdealLoop iterations",
		"Optimize finished",
		"Global code motion",
		"Final Code",
		"After Escape Analysis",
		"Before CountedLoop",
		"After CountedLoop",
		"Before beautify loops",
		"After beautify loops",
		"Before Matching",
		"Incremental Inline",
		"Incremental Boxing Inline",
		"End",
		"Failure",
	)

	VMOperationType = NewEnum(
		"Dummy",
		"ThreadStop",
		"ThreadDump",
		"PrintThreads",
		"FindDeadlocks",
		"ForceSafepoint",
		"ForceAsyncSafepoint",
		"Deoptimize",
		"DeoptimizeFrame",
		"DeoptimizeAll",
		"ZombieAll",
		"UnlinkSymbols",
		"Verify",
		"PrintJNI",
		"HeapDumper",
		"DeoptimizeTheWorld",
		"CollectForMetadataAllocation",
		"GC_HS_Debug",
		"GenCollectFull",
		"GenCollectFullConcurrent",
		"GenCollectForAllocation",
		"ParallelGCFailedAllocation",
		"ParallelGCSystemGC",
		"CGC_Operation",
		"CMS_Initial_Mark",
		"CMS_Final_Remark",
		"G1CollectFull",
		"G1CollectForAllocation",
		"G1IncCollectionPause",
		"EnableBiasedLocking",
		"RevokeBias",
		"BulkRevokeBias",
		"PopulateDumpSharedSpace",
		"JNIFunctionTableCopier",
		"RedefineClasses",
		"GetOwnedMonitorInfo",
		"GetObjectMonitorUsage",
		"GetCurrentContendedMonitor",
		"GetStackTrace",
		"GetMultipleStackTraces",
		"GetAllStackTraces",
		"GetThreadListStackTraces",
		"GetFrameCount",
		"GetFrameLocation",
		"ChangeBreakpoints",
		"GetOrSetLocal",
		"GetCurrentLocation",
		"EnterInterpOnlyMode",
		"ChangeSingleStep",
		"HeapWalkOperation",
		"HeapIterateOperation",
		"ReportJavaOutOfMemory",
		"JFRCheckpoint",
		"Exit",
		"LinuxDllLoad",
		"RotateGCLog",
		"WhiteBoxOperation",
		"ClassLoaderStatsOperation",
		"JFROldObject",
	)

	// ThreadState is owned by the thread registry.
	ThreadState = threadStates()
)

func threadStates() Enum {
	names := make([]string, threads.NumStates)
	for s := threads.State(0); s < threads.NumStates; s++ {
		names[s] = s.String()
	}
	return NewEnum(names...)
}

// CodeBlobType collapses every code heap into a single "CodeCache" entry.
var CodeBlobType = SerializerFunc(func(w *writer.Writer) {
	w.WriteCount(1)
	w.WriteKey(0)
	w.WriteString("CodeCache")
})

// Statics lists the static tables in registration order.
var Statics = []struct {
	ID         framing.TypeID
	Serializer Serializer
}{
	{framing.TypeFlagValueOrigin, FlagValueOrigin},
	{framing.TypeMonitorInflateCause, MonitorInflateCause},
	{framing.TypeGCCause, GCCause},
	{framing.TypeGCName, GCName},
	{framing.TypeGCWhen, GCWhen},
	{framing.TypeG1HeapRegionType, G1HeapRegionType},
	{framing.TypeGCThresholdUpdater, GCThresholdUpdater},
	{framing.TypeMetadataType, MetadataType},
	{framing.TypeMetaspaceObjectType, MetaspaceObjectType},
	{framing.TypeG1YCType, G1YCType},
	{framing.TypeReferenceType, ReferenceType},
	{framing.TypeNarrowOopMode, NarrowOopMode},
	{framing.TypeCompilerPhaseType, CompilerPhaseType},
	{framing.TypeCodeBlobType, CodeBlobType},
	{framing.TypeVMOperationType, VMOperationType},
	{framing.TypeThreadState, ThreadState},
}

// DefaultManager returns a manager with every built-in table registered:
// the static tables, then the thread table, then the thread group table,
// which lists the groups the thread table referenced.
func DefaultManager(reg *threads.Registry) *Manager {
	m := NewManager()
	for _, s := range Statics {
		mustRegister(m, s.ID, true, s.Serializer)
	}
	mustRegister(m, framing.TypeThread, false, ThreadSet{Registry: reg})
	mustRegister(m, framing.TypeThreadGroup, false, ThreadGroupSet{Registry: reg})
	return m
}

func mustRegister(m *Manager, id framing.TypeID, static bool, s Serializer) {
	if err := m.Register(id, static, s); err != nil {
		panic(err)
	}
}
