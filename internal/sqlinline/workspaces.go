package sqlinline

const QSelectDefaultWorkspace = `--sql 70bf480d-78f4-4954-b8ba-275405ce1596
select m.workspace_id::text
from workspace_members m
join workspaces w on w.id = m.workspace_id
where m.user_id = $1::uuid
  and w.deleted_at is null
order by m.is_default desc, m.created_at asc
limit 1;
`

const QSelectWorkspaceMembership = `--sql 0621c721-864d-4445-8614-a445cd3bd7b0
select exists (
    select 1
    from workspace_members m
    join workspaces w on w.id = m.workspace_id
    where m.user_id = $1::uuid
      and m.workspace_id = $2::uuid
      and w.deleted_at is null
);
`
