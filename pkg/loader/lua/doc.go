// Package lua runs unit implementations written as Lua scripts.
//
// A script returns a function that is called once with the RED table:
//
//	return function(RED)
//	    RED.nodes.registerType("lower-case", function(config)
//	        return { name = config.name }
//	    end, { category = "function" })
//	    RED.log.info("lower-case ready")
//	end
//
// RED.nodes.registerType raises a Lua error when the type is already bound
// to another unit. RED._(key) translates a key from the unit's catalog.
// Each unit keeps its own interpreter after loading so registered
// constructors can be called later; Release closes it.
package lua
