/*
Package client implements the Daemon side of Skein's client/AM split
(§4.H): submitting an ApplicationSpec, tracking its in-process
Application Master, and answering status/kill/KV calls by calling that
master directly. DialMaster opens a mutual-TLS Master RPC client to it.

# Usage

	daemon := client.NewDaemon(spec.Limits{MaxMemoryMiB: 65536, MaxVCores: 64}, log)

	id, err := daemon.Submit(ctx, appSpec)
	if err != nil {
		log.Fatal(err)
	}

	report, err := daemon.WaitForStart(ctx, id)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("application %s running at %s:%d\n", id, report.Host, report.Port)

	mc, closeFn, err := daemon.DialMaster(ctx, id)
	if err != nil {
		log.Fatal(err)
	}
	defer closeFn()

	containers, err := mc.GetContainers(ctx, &rpc.GetContainersRequest{})

# See also

  - pkg/rpc for the Master RPC client/server pair
  - pkg/master for the Application Master itself
  - pkg/security for the in-memory certificate authority
*/
package client
