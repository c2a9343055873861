// Package behavior defines the unit of robot control that the scheduler
// arbitrates between, and the registry that owns every unit.
//
// A [Unit] is created once from configuration at startup and lives in a
// single [Registry]. Every other component refers to units by [ID] only; the
// registry is the only owner. Units report a score, runnability and
// running counters, which are read by choosers and reaction strategies, and
// expose an activation/update/stop/resume lifecycle driven by the scheduler.
//
// Unit status uses the go-behaviortree vocabulary: [bt.Running] while the
// unit wants to keep control, [bt.Success] when it completed and
// [bt.Failure] when it gave up.
package behavior
